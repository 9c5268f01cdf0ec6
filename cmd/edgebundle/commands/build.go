package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/edgebundle/internal/config"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
	"git.home.luguber.info/inful/edgebundle/internal/metrics"
	"git.home.luguber.info/inful/edgebundle/internal/pipeline"
	"git.home.luguber.info/inful/edgebundle/internal/summary"
	"git.home.luguber.info/inful/edgebundle/internal/version"
	"git.home.luguber.info/inful/edgebundle/internal/watch"
)

// Defaults used when neither flags nor the options file name a directory.
const (
	DefaultInput  = ".vercel/output"
	DefaultOutput = "dist"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Input       string `arg:"" optional:"" help:"Intermediate output directory (default: .vercel/output)" type:"path"`
	Output      string `short:"o" help:"Output directory for the bundle (default: dist)" type:"path"`
	Project     string `help:"Directory searched for a git repository to stamp the source revision" type:"path"`
	NoDedup     bool   `name:"no-dedup" help:"Keep shared code inside every function instead of hoisting it into chunks"`
	NoMinify    bool   `name:"no-minify" help:"Skip minification of emitted modules"`
	Entrypoint  string `help:"Custom worker entry module, copied verbatim in place of the generated one" type:"path"`
	Concurrency int    `help:"Bound on concurrent function processing (0 = number of CPUs)"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics in textfile format after each build" type:"path"`
	Watch       bool   `short:"w" help:"Rebuild when the input directory changes"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadOptions()
	if err != nil {
		return err
	}
	opts := b.options(cfg)
	metricsFile := first(b.MetricsFile, cfg.MetricsFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !b.Watch {
		return runBuild(ctx, g.Out, opts, metricsFile, nil)
	}

	observer := progress{out: g.Out}
	if err := runBuild(ctx, g.Out, opts, metricsFile, observer); err != nil {
		slog.Error("Initial build failed; watching for changes", logfields.Error(err))
	}
	w, err := watch.New(opts.InputDir, watch.Options{
		Debounce: time.Duration(cfg.Watch.Debounce),
		Ignore:   []string{opts.OutputDir},
	})
	if err != nil {
		return err
	}
	return w.Run(ctx, func(ctx context.Context) error {
		return runBuild(ctx, g.Out, opts, metricsFile, observer)
	})
}

// options merges flags over the options file.
func (b *BuildCmd) options(cfg *config.Config) pipeline.Options {
	concurrency := cfg.Concurrency
	if b.Concurrency > 0 {
		concurrency = b.Concurrency
	}
	return pipeline.Options{
		InputDir:      first(b.Input, cfg.Input, DefaultInput),
		OutputDir:     first(b.Output, cfg.Output, DefaultOutput),
		ProjectDir:    first(b.Project, cfg.Project),
		DisableDedup:  b.NoDedup || !cfg.DedupEnabled(),
		DisableMinify: b.NoMinify || !cfg.MinifyEnabled(),
		Entrypoint:    first(b.Entrypoint, cfg.Entrypoint),
		Concurrency:   concurrency,
		Version:       version.Version,
	}
}

// progress prints one line per finished stage.
type progress struct {
	out io.Writer
}

func (progress) OnStageStart(pipeline.StageName) {}

func (p progress) OnStageComplete(stage pipeline.StageName, d time.Duration, res pipeline.StageResult) {
	_, _ = fmt.Fprintf(p.out, "  %-15s %-8s %s\n", stage, res, d.Round(time.Millisecond))
}

func runBuild(ctx context.Context, out io.Writer, opts pipeline.Options, metricsFile string, observer pipeline.StageObserver) error {
	var (
		recorder metrics.Recorder = metrics.NoopRecorder{}
		reg      *prom.Registry
	)
	if metricsFile != "" {
		reg = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
	}

	res, err := pipeline.RunObserved(ctx, opts, recorder, observer)
	if reg != nil {
		if werr := metrics.WriteTextfile(reg, metricsFile); werr != nil {
			slog.Warn("Failed to write metrics file", logfields.Path(metricsFile), logfields.Error(werr))
		}
	}
	if err != nil {
		return err
	}
	printSummary(out, opts.OutputDir, res.Summary)
	return nil
}

func printSummary(out io.Writer, dir string, s *summary.Summary) {
	_, _ = fmt.Fprintf(out, "Bundle written to %s\n", dir)
	_, _ = fmt.Fprintf(out, "  files:     %d (%s, %s gzipped)\n",
		s.Bundle.Files, humanize.Bytes(uint64(s.Bundle.Bytes)), humanize.Bytes(uint64(s.Bundle.GzipBytes)))
	_, _ = fmt.Fprintf(out, "  assets:    %d (%s)\n", s.Assets.Count, humanize.Bytes(uint64(s.Assets.Bytes)))
	_, _ = fmt.Fprintf(out, "  functions: %d edge, %d prerendered, %d unsupported\n",
		s.Functions.Edge, s.Functions.Prerendered, s.Functions.Unsupported)
	if s.Chunks.DedupEnabled {
		_, _ = fmt.Fprintf(out, "  chunks:    %d (%s saved)\n", s.Chunks.Count, humanize.Bytes(uint64(s.Chunks.BytesSaved)))
	}
	_, _ = fmt.Fprintf(out, "  routes:    %d (%d unreachable)\n", s.Routes.Entries, s.Routes.Unreachable)
	for _, w := range s.Warnings {
		label := w.Code
		if w.Function != "" {
			label += " " + w.Function
		}
		_, _ = fmt.Fprintf(out, "  warning:   %s: %s\n", label, w.Message)
	}
}

// first returns the first non-empty value.
func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/edgebundle/internal/assemble"
	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
	"git.home.luguber.info/inful/edgebundle/internal/chunks"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/functions"
	"git.home.luguber.info/inful/edgebundle/internal/git"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
	"git.home.luguber.info/inful/edgebundle/internal/metrics"
	"git.home.luguber.info/inful/edgebundle/internal/model"
	"git.home.luguber.info/inful/edgebundle/internal/routes"
	"git.home.luguber.info/inful/edgebundle/internal/summary"
)

// Input tree layout.
const (
	StaticDir    = "static"
	FunctionsDir = "functions"
)

// Options configure one build.
type Options struct {
	// InputDir is the framework's intermediate output root.
	InputDir string
	// OutputDir receives the bundle. Replaced atomically on success.
	OutputDir string
	// ProjectDir is searched for a git repository to stamp the source
	// revision. Defaults to InputDir.
	ProjectDir    string
	DisableDedup  bool
	DisableMinify bool
	// Entrypoint, when set, replaces the generated worker entry module.
	Entrypoint  string
	Concurrency int
	Version     string
}

// Validate normalises paths and rejects unusable combinations.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.InputDir) == "" {
		return errors.ValidationError("input directory is required").UserAction().Build()
	}
	if strings.TrimSpace(o.OutputDir) == "" {
		return errors.ValidationError("output directory is required").UserAction().Build()
	}
	if o.Concurrency < 0 {
		return errors.ValidationError("concurrency must not be negative").
			WithContext("concurrency", o.Concurrency).UserAction().Build()
	}
	in, err := filepath.Abs(o.InputDir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "resolve input directory").Build()
	}
	out, err := filepath.Abs(o.OutputDir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "resolve output directory").Build()
	}
	if in == out || within(in, out) {
		return errors.ValidationError("output directory must not contain the input directory").
			WithContext("input", in).WithContext("output", out).UserAction().Build()
	}
	o.InputDir, o.OutputDir = in, out
	if o.ProjectDir == "" {
		o.ProjectDir = in
	}
	if o.Entrypoint != "" {
		if o.Entrypoint, err = filepath.Abs(o.Entrypoint); err != nil {
			return errors.WrapError(err, errors.CategoryValidation, "resolve entrypoint").Build()
		}
	}
	return nil
}

// within reports whether path lies below dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Result is the outcome of Run.
type Result struct {
	Summary *summary.Summary
	Report  *BuildReport
}

// Run builds the bundle. On any fatal error the previous output is left
// untouched and nothing is written in its place. The report is always
// returned, also on failure.
func Run(ctx context.Context, opts Options, recorder metrics.Recorder) (*Result, error) {
	return run(ctx, opts, recorder, nil)
}

// RunObserved is Run with stage lifecycle callbacks.
func RunObserved(ctx context.Context, opts Options, recorder metrics.Recorder, observer StageObserver) (*Result, error) {
	return run(ctx, opts, recorder, observer)
}

func run(ctx context.Context, opts Options, recorder metrics.Recorder, observer StageObserver) (*Result, error) {
	bs := newBuildState(opts, recorder)
	bs.Observer = observer
	res := &Result{Report: bs.Report}

	if err := bs.Options.Validate(); err != nil {
		bs.Report.AddIssue(IssueInvalidOptions, "", SeverityError, err.Error(), false, err)
		finish(bs)
		return res, err
	}

	defer func() {
		// Promote clears Staging; anything left over is a failed build.
		if bs.Staging != nil {
			bs.Staging.Abort()
		}
	}()

	slog.Info("Starting build", logfields.Path(bs.Options.InputDir), logfields.Output(bs.Options.OutputDir))
	err := RunStages(ctx, bs, stagesFor(false))
	finish(bs)
	if err != nil {
		return res, err
	}
	res.Summary = bs.Summary
	slog.Info("Build complete",
		logfields.BuildID(bs.Summary.BuildID),
		slog.String("outcome", string(bs.Report.Outcome)),
		logfields.Count(len(bs.Warnings)),
		logfields.DurationMS(float64(bs.Report.End.Sub(bs.Report.Start).Microseconds())/1000))
	return res, nil
}

// stagesFor lays out a build. With analyzeOnly the stages that write
// output are left out.
func stagesFor(analyzeOnly bool) []StageDef {
	return NewPipeline().
		Add(StageResolveConfig, stageResolveConfig).
		Add(StageCollect, stageCollect).
		Add(StageDeduplicate, stageDeduplicate).
		Add(StageBuildRoutes, stageBuildRoutes).
		AddIf(!analyzeOnly, StageAssemble, stageAssemble).
		AddIf(!analyzeOnly, StageWriteMetadata, stageWriteMetadata).
		AddIf(!analyzeOnly, StagePromoteOutput, stagePromote).
		Build()
}

func finish(bs *BuildState) {
	bs.Report.Finish()
	bs.Report.DeriveOutcome()
	r := bs.Recorder
	r.ObserveBuildDuration(bs.Report.End.Sub(bs.Report.Start))
	r.IncBuildOutcome(metrics.BuildOutcomeLabel(bs.Report.Outcome))
	if bs.Functions != nil {
		for _, k := range []model.RuntimeKind{model.RuntimeEdge, model.RuntimePrerendered, model.RuntimeUnsupported} {
			r.SetFunctions(string(k), bs.Functions.Count(k))
		}
	}
	if bs.Dedup != nil {
		r.SetDedup(bs.Dedup.Chunks.Len(), bs.Dedup.BytesSaved)
	}
	if bs.Summary != nil && bs.Report.Outcome != OutcomeFailed && bs.Report.Outcome != OutcomeCanceled {
		r.SetBundleBytes(bs.Summary.Bundle.Bytes, bs.Summary.Bundle.GzipBytes)
	}
}

func stageResolveConfig(_ context.Context, bs *BuildState) error {
	cfg, err := buildconfig.Load(bs.Options.InputDir)
	if err != nil {
		return err
	}
	bs.Config = cfg
	return nil
}

// stageCollect walks the static tree and processes functions concurrently.
// Prerender fallbacks join the asset manifest once both sides are done.
func stageCollect(ctx context.Context, bs *BuildState) error {
	var (
		manifest *assets.Manifest
		fns      *functions.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := assets.Collect(gctx, filepath.Join(bs.Options.InputDir, StaticDir), bs.Config.Overrides)
		manifest = m
		return err
	})
	g.Go(func() error {
		r, err := functions.Process(gctx, filepath.Join(bs.Options.InputDir, FunctionsDir), bs.Registry,
			functions.Options{Concurrency: bs.Options.Concurrency})
		fns = r
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	merged, err := manifest.Extend(fns.Fallbacks()...)
	if err != nil {
		return err
	}
	if err := assemble.CheckLayout(merged, summary.FileName); err != nil {
		return err
	}
	bs.Manifest, bs.Functions = merged, fns

	mark := len(bs.Warnings)
	for _, s := range fns.Skipped {
		bs.warn(s.Err)
	}
	slog.Info("Collected inputs", slog.Int("assets", merged.Len()), slog.Int("functions", len(fns.Functions)))
	return bs.warnings(StageCollect, mark)
}

func stageDeduplicate(ctx context.Context, bs *BuildState) error {
	res, err := chunks.Deduplicate(ctx, bs.Functions.Functions, bs.Registry, chunks.Options{Disabled: bs.Options.DisableDedup})
	if err != nil {
		return err
	}
	bs.Dedup = res
	return nil
}

func stageBuildRoutes(_ context.Context, bs *BuildState) error {
	bs.Table = routes.Build(bs.Config, bs.Manifest, bs.Dedup.Functions)
	slog.Info("Route table built", logfields.Count(len(bs.Table.Entries)), slog.Int("unreachable", bs.Table.Unreachable()))
	return nil
}

func stageAssemble(ctx context.Context, bs *BuildState) error {
	st, err := assemble.BeginStaging(bs.Options.OutputDir)
	if err != nil {
		return err
	}
	bs.Staging = st

	opts := assemble.Options{
		Entrypoint:  bs.Options.Entrypoint,
		Version:     bs.Options.Version,
		Concurrency: bs.Options.Concurrency,
		Reserved:    []string{summary.FileName},
	}
	if !bs.Options.DisableMinify {
		opts.Minifier = assemble.ESBuildMinifier{}
	}
	bundle, err := assemble.Assemble(ctx, st.Dir(), assemble.Input{
		Manifest:  bs.Manifest,
		Functions: bs.Dedup.Functions,
		Chunks:    bs.Dedup.Chunks,
		Table:     bs.Table,
	}, opts)
	if err != nil {
		return err
	}
	bs.Bundle = bundle

	mark := len(bs.Warnings)
	bs.warn(bundle.Warnings...)
	return bs.warnings(StageAssemble, mark)
}

func stageWriteMetadata(_ context.Context, bs *BuildState) error {
	rev, err := git.Revision(bs.Options.ProjectDir)
	if err != nil {
		slog.Debug("Source revision unavailable", logfields.Path(bs.Options.ProjectDir), logfields.Error(err))
	}
	durations := make(map[string]time.Duration, len(bs.Report.StageDurations))
	for k, v := range bs.Report.StageDurations {
		durations[k] = v
	}
	s, err := summary.Build(summary.Input{
		Version:        bs.Options.Version,
		SourceRevision: rev,
		Manifest:       bs.Manifest,
		Functions:      bs.Functions,
		Dedup:          bs.Dedup,
		DedupEnabled:   !bs.Options.DisableDedup,
		Table:          bs.Table,
		Bundle:         bs.Bundle,
		Warnings:       bs.Warnings,
		StageDurations: durations,
	})
	if err != nil {
		return err
	}
	if err := summary.Write(bs.Staging.Dir(), s); err != nil {
		return err
	}
	bs.Summary = s
	return nil
}

func stagePromote(_ context.Context, bs *BuildState) error {
	if err := bs.Staging.Promote(); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "promote output").
			Fatal().WithContext("output", bs.Options.OutputDir).Build()
	}
	bs.Staging = nil
	return nil
}

// Package commands implements the edgebundle command line.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/edgebundle/internal/config"
)

// Global carries state shared by every command.
type Global struct {
	Out io.Writer
}

// NewGlobal writes user-facing output to stdout.
func NewGlobal() *Global { return &Global{Out: os.Stdout} }

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Options file path (default: ./edgebundle.yaml when present)" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Bundle the intermediate output into an edge worker"`
	Inspect InspectCmd `cmd:"" help:"Print the route table and deduplication plan without writing output"`
	Init    InitCmd    `cmd:"" help:"Write an example options file"`
	Ver     VersionCmd `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setupLogging(config.LogLevelInfo, config.LogFormatText, c.Verbose)
	return nil
}

// LoadOptions reads the options file and applies its logging settings.
func (c *CLI) LoadOptions() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging.Level, cfg.Logging.Format, c.Verbose)
	return cfg, nil
}

func setupLogging(level config.LogLevel, format config.LogFormat, verbose bool) {
	opts := &slog.HandlerOptions{Level: level.Slog()}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

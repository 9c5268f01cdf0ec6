// Package config loads the optional edgebundle.yaml options file. Values set
// there are defaults for the command line; EDGEBUNDLE_* environment variables
// override the file and flags override both.
package config

import (
	stdErrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "edgebundle.yaml"

// Config represents the options file.
type Config struct {
	Input       string        `yaml:"input"`
	Output      string        `yaml:"output"`
	Project     string        `yaml:"project,omitempty"`
	Dedup       *bool         `yaml:"dedup,omitempty"`
	Minify      *bool         `yaml:"minify,omitempty"`
	Entrypoint  string        `yaml:"entrypoint,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	MetricsFile string        `yaml:"metrics_file,omitempty"`
	Watch       WatchConfig   `yaml:"watch"`
	Logging     LoggingConfig `yaml:"logging"`
}

// WatchConfig configures --watch rebuilds.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("300ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// DedupEnabled reports the effective dedup setting.
func (c *Config) DedupEnabled() bool { return c.Dedup == nil || *c.Dedup }

// MinifyEnabled reports the effective minify setting.
func (c *Config) MinifyEnabled() bool { return c.Minify == nil || *c.Minify }

// Load reads the options file at path. An empty path loads DefaultFileName
// if it exists and otherwise returns defaults. Environment variables from
// .env files are loaded first; already-set variables win.
func Load(path string) (*Config, error) {
	loadEnvFile()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryValidation, "parse options file").
				Fatal().UserAction().WithContext("path", path).Build()
		}
		cfg.resolvePaths(filepath.Dir(path))
		slog.Debug("Loaded options file", logfields.Path(path))
	case stdErrors.Is(err, fs.ErrNotExist) && !explicit:
	case stdErrors.Is(err, fs.ErrNotExist):
		return nil, errors.WrapError(err, errors.CategoryValidation, "options file not found").
			Fatal().UserAction().WithContext("path", path).Build()
	default:
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read options file").
			Fatal().WithContext("path", path).Build()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes file-relative paths relative to the options file.
func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Input, &c.Output, &c.Project, &c.Entrypoint, &c.MetricsFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate rejects values no build could use.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return errors.ValidationError("concurrency must not be negative").
			WithContext("concurrency", c.Concurrency).Build()
	}
	if c.Watch.Debounce < 0 {
		return errors.ValidationError("watch debounce must not be negative").Build()
	}
	return nil
}

// loadEnvFile loads the first .env file found. Missing files are not an error.
func loadEnvFile() {
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Failed to load environment file", logfields.Path(p), logfields.Error(err))
			return
		}
		slog.Debug("Loaded environment file", logfields.Path(p))
		return
	}
}

// Init writes an example options file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ValidationError("options file already exists (use --force to overwrite)").
			WithContext("path", path).Build()
	}
	enabled := true
	example := Config{
		Input:   ".vercel/output",
		Output:  "dist",
		Dedup:   &enabled,
		Minify:  &enabled,
		Watch:   WatchConfig{Debounce: Duration(DefaultDebounce)},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}
	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "encode options file").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write options file").
			WithContext("path", path).Build()
	}
	return nil
}

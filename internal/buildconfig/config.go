// Package buildconfig resolves the intermediate build configuration (config.json)
// into a validated, immutable BuildConfig.
package buildconfig

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
)

// FileName is the configuration file at the root of the intermediate output.
const FileName = "config.json"

// Supported schema version range (inclusive).
const (
	MinVersion = 3
	MaxVersion = 3
)

// Override remaps a static file to a different routing path and/or content type.
type Override struct {
	Path        string `json:"path,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// BuildConfig is the validated configuration. Immutable once loaded.
type BuildConfig struct {
	Version   int
	Routes    []Route
	Overrides map[string]Override // keyed by path relative to the static tree
}

type rawConfig struct {
	Version   *int                `json:"version"`
	Routes    []rawRoute          `json:"routes"`
	Overrides map[string]Override `json:"overrides"`
}

// Load reads and validates root/config.json.
func Load(root string) (*BuildConfig, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil, errors.WrapError(err, errors.CategoryConfig, "build configuration not found").
				Fatal().UserAction().WithContext("path", path).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read build configuration").
			Fatal().WithContext("path", path).Build()
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Build configuration loaded", logfields.Path(path), slog.Int("version", cfg.Version), logfields.Count(len(cfg.Routes)))
	return cfg, nil
}

// Parse validates configuration bytes. Comments and trailing commas are tolerated.
func Parse(data []byte) (*BuildConfig, error) {
	var raw rawConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "malformed build configuration").Fatal().Build()
	}
	if raw.Version == nil {
		return nil, errors.ConfigError("build configuration has no schema version").Build()
	}
	if v := *raw.Version; v < MinVersion || v > MaxVersion {
		return nil, errors.ConfigError("unsupported build configuration schema version").
			WithContext("version", v).
			WithContext("supported", fmt.Sprintf("%d-%d", MinVersion, MaxVersion)).
			Build()
	}

	routes := make([]Route, 0, len(raw.Routes))
	for i, rr := range raw.Routes {
		r, err := rr.toRoute()
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "invalid route").
				Fatal().UserAction().WithContext("index", i).Build()
		}
		routes = append(routes, r)
	}

	overrides := raw.Overrides
	if overrides == nil {
		overrides = map[string]Override{}
	}
	return &BuildConfig{Version: *raw.Version, Routes: routes, Overrides: overrides}, nil
}

package functions

import (
	"encoding/json"
	stdErrors "errors"
	"io/fs"
	"os"

	"github.com/tidwall/jsonc"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

const (
	// DirSuffix marks a function directory.
	DirSuffix = ".func"
	// ManifestFile is the per-function manifest inside a function directory.
	ManifestFile = ".vc-config.json"
	// PrerenderSuffix names the sibling file that marks a function as prerendered.
	PrerenderSuffix = ".prerender-config.json"

	edgeRuntime     = "edge"
	defaultEntry    = "index.js"
	prerenderPrefix = "__prerender"
)

type manifest struct {
	Runtime    string   `json:"runtime"`
	Entrypoint string   `json:"entrypoint"`
	Regions    []string `json:"regions"`
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil, errors.WrapError(err, errors.CategoryConfig, "function has no manifest").
				Fatal().UserAction().WithContext("path", path).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read function manifest").
			Fatal().WithContext("path", path).Build()
	}
	var m manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "malformed function manifest").
			Fatal().WithContext("path", path).Build()
	}
	if m.Entrypoint == "" {
		m.Entrypoint = defaultEntry
	}
	return &m, nil
}

type prerenderConfig struct {
	Expiration  int
	Fallback    string
	BypassToken string
}

type rawPrerenderConfig struct {
	Expiration  json.RawMessage `json:"expiration"`
	Fallback    json.RawMessage `json:"fallback"`
	BypassToken string          `json:"bypassToken"`
}

// readPrerenderConfig returns nil when the function has no prerender config.
func readPrerenderConfig(path string) (*prerenderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read prerender config").
			Fatal().WithContext("path", path).Build()
	}
	malformed := func(err error) error {
		return errors.WrapError(err, errors.CategoryConfig, "malformed prerender config").
			Fatal().WithContext("path", path).Build()
	}

	var raw rawPrerenderConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, malformed(err)
	}
	cfg := &prerenderConfig{BypassToken: raw.BypassToken}

	// expiration is seconds or false (never revalidate)
	if len(raw.Expiration) > 0 && string(raw.Expiration) != "false" && string(raw.Expiration) != "null" {
		if err := json.Unmarshal(raw.Expiration, &cfg.Expiration); err != nil {
			return nil, malformed(err)
		}
	}

	// fallback is a file name or {"fsPath": "..."}
	if len(raw.Fallback) > 0 && string(raw.Fallback) != "null" {
		if err := json.Unmarshal(raw.Fallback, &cfg.Fallback); err != nil {
			var obj struct {
				FSPath string `json:"fsPath"`
			}
			if err := json.Unmarshal(raw.Fallback, &obj); err != nil {
				return nil, malformed(err)
			}
			cfg.Fallback = obj.FSPath
		}
	}
	if cfg.Fallback == "" {
		return nil, errors.ConfigError("prerender config has no fallback file").
			UserAction().WithContext("path", path).Build()
	}
	return cfg, nil
}

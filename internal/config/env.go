package config

import (
	"os"
	"strconv"
	"time"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "EDGEBUNDLE_"

// applyEnv overlays EDGEBUNDLE_* variables onto cfg.
func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("INPUT", &cfg.Input)
	str("OUTPUT", &cfg.Output)
	str("PROJECT", &cfg.Project)
	str("ENTRYPOINT", &cfg.Entrypoint)
	str("METRICS_FILE", &cfg.MetricsFile)

	for name, dst := range map[string]**bool{"DEDUP": &cfg.Dedup, "MINIFY": &cfg.Minify} {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = &b
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("CONCURRENCY", v, err)
		}
		cfg.Concurrency = n
	}
	if v := os.Getenv(EnvPrefix + "WATCH_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("WATCH_DEBOUNCE", v, err)
		}
		cfg.Watch.Debounce = Duration(d)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = LogLevel(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = LogFormat(v)
	}
	return nil
}

func envError(name, value string, err error) error {
	return errors.WrapError(err, errors.CategoryValidation, "invalid environment override").
		Fatal().UserAction().WithContext("variable", EnvPrefix+name).WithContext("value", value).Build()
}

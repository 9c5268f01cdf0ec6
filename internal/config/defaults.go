package config

import "time"

// DefaultDebounce coalesces bursts of file events during --watch.
const DefaultDebounce = 300 * time.Millisecond

func applyDefaults(cfg *Config) {
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(DefaultDebounce)
	}
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}

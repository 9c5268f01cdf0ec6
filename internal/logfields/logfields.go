package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyFunction   = "function"
	KeyRuntime    = "runtime"
	KeyRoute      = "route"
	KeyRouteKind  = "route_kind"
	KeyChunk      = "chunk"
	KeyBytes      = "bytes"
	KeyCount      = "count"
	KeyOutput     = "output"
	KeyBuildID    = "build_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Function(name string) slog.Attr  { return slog.String(KeyFunction, name) }
func Runtime(r string) slog.Attr      { return slog.String(KeyRuntime, r) }
func Route(src string) slog.Attr      { return slog.String(KeyRoute, src) }
func RouteKind(k string) slog.Attr    { return slog.String(KeyRouteKind, k) }
func Chunk(id string) slog.Attr       { return slog.String(KeyChunk, id) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Output(dir string) slog.Attr     { return slog.String(KeyOutput, dir) }
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

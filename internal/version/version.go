package version

import "fmt"

// Version contains the application version information.
// Set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/edgebundle/internal/version.Version=v0.4.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by `edgebundle version`.
func String() string {
	return fmt.Sprintf("edgebundle %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// Package version carries build metadata set through -ldflags.
package version

import "fmt"

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("scanline %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

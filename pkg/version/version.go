// Package version carries build-time version metadata.
package version

import "fmt"

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the full version line.
func String() string {
	return fmt.Sprintf("fleet %s (commit %s, built %s)", Version, Commit, Date)
}

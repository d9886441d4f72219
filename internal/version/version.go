// Package version holds build metadata injected via -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version of the build.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// Info returns a single-line version string.
func Info() string {
	return fmt.Sprintf("gomotion %s (commit %s, built %s)", Version, Commit, Date)
}

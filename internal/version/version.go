// Package version holds build identifiers stamped at link time via
// -ldflags and reported by the version subcommand and run records.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line build identifier.
func String() string {
	return fmt.Sprintf("lifecycle-report %s (%s, built %s)", Version, GitSHA, BuildTime)
}

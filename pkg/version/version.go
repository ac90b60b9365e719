// Package version provides build version information.
package version

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
)

// Exporter returns the tool identifier embedded in serialized profiles.
func Exporter() string {
	return "perch@" + Version
}

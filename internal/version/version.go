// Package version holds build-time version information shared by the CLI
// and the API. Values are injected via -ldflags at release build time.
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"

	// Commit is the short git commit hash of the build.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Info returns the version fields as a map for API responses.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}

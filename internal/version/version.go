// Package version holds build identification stamped in via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

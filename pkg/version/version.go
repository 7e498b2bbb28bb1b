// Package version reports the build version of cohort.
package version

// version is set at build time with
// -ldflags "-X github.com/rshade/cohort/pkg/version.version=v1.2.3".
//
//nolint:gochecknoglobals // Overridden by the linker.
var version = "dev"

// GetVersion returns the build version, or "dev" for untagged builds.
func GetVersion() string {
	return version
}

// Package version exposes the build-time version string.
package version

// version is injected at build time via -ldflags.
var version = "dev"

// Value returns the version embedded in the binary.
func Value() string {
	return version
}

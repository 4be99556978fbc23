package version

import "runtime/debug"

// version is set at build time with -ldflags "-X .../pkg/version.version=v1.2.3"
var version string

// Get returns the build version, falling back to module build info.
func Get() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

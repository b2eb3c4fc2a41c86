// Package version reports the lifter build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version information - set at build time via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// readBuildInfo is replaced in tests
var readBuildInfo = debug.ReadBuildInfo

// Short returns just the version string. A "go install" build without
// ldflags reports the module version instead of "dev".
func Short() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// Info returns formatted version information
func Info() string {
	return fmt.Sprintf("lifter version %s\n  commit: %s\n  built: %s\n  go: %s\n  os/arch: %s/%s",
		Short(), Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent returns the User-Agent sent with every request
func UserAgent() string {
	return "lifter/" + Short()
}

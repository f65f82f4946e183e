package version

import "runtime"

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// String is Build with the Go toolchain and target platform.
func String() string {
	return Build + " " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
}

package main

import "runtime"

// hostPlatform maps GOOS/GOARCH to a conda subdir, the same pairing
// repodata.json's per-platform directories use.
func hostPlatform() string {
	switch runtime.GOOS {
	case "linux":
		switch runtime.GOARCH {
		case "arm64":
			return "linux-aarch64"
		case "arm":
			return "linux-armv7l"
		case "ppc64le":
			return "linux-ppc64le"
		case "s390x":
			return "linux-s390x"
		default:
			return "linux-64"
		}
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "osx-arm64"
		}
		return "osx-64"
	case "windows":
		if runtime.GOARCH == "arm64" {
			return "win-arm64"
		}
		return "win-64"
	default:
		return "linux-64"
	}
}

package main

import (
	"log"
	"runtime/debug"

	"github.com/coreos/go-semver/semver"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.0.0-dev"

// currentVersion returns the build version, falling back to the module
// version recorded by the Go toolchain.
func currentVersion() string {
	v := version
	if info, ok := debug.ReadBuildInfo(); ok && v == "0.0.0-dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	return formatVersion(v)
}

func formatVersion(v string) string {
	if len(v) > 0 && v[0] == 'v' {
		v = v[1:]
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		log.Printf("Invalid version %q: %v", v, err)
		return "unknown"
	}
	return parsed.String()
}

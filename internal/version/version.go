// Package version reports the colony release and build revision.
package version

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the release version from the VERSION file.
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the release plus the VCS revision when the binary was
// built from a checkout, e.g. "0.1.0 (3f2c1ab, modified)".
func String() string {
	v := Get()
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return v
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if dirty {
		return v + " (" + rev + ", modified)"
	}
	return v + " (" + rev + ")"
}

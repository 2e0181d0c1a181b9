// Package version exposes the conclave release version.
package version

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// Revision returns the short VCS revision the binary was built from, with a
// "-dirty" suffix for modified trees. It is empty when the build carries no
// VCS stamp, as under go test.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return revisionOf(info.Settings)
}

func revisionOf(settings []debug.BuildSetting) string {
	var rev string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return ""
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// String formats the version the way the CLI prints it.
func String() string {
	s := "conclave version " + Get()
	if rev := Revision(); rev != "" {
		s += " (" + rev + ")"
	}
	return s
}

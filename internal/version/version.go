// Package version exposes build metadata for agentdesk.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the product name reported to the backend and to viewers.
const Name = "agentdesk"

// Release builds set these with -ldflags "-X .../internal/version.Version=...".
// A plain `go install` leaves them at their defaults and Revision falls back
// to the VCS stamp in the binary.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Revision returns the commit the binary was built from, if known.
func Revision() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	return vcsRevision(info.Settings)
}

func vcsRevision(settings []debug.BuildSetting) string {
	rev, dirty := "unknown", false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && rev != "unknown" {
		return short(rev) + "-dirty"
	}
	return rev
}

// Info is the one-line banner printed by `agentdesk version`.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s/%s)",
		Name, Version, short(Revision()), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on every REST and WebSocket request.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s/%s)", Name, Version, runtime.GOOS, runtime.GOARCH)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

package version

import (
	"runtime/debug"
	"strings"
)

const defaultModule = "pkt.systems/tbl"

// buildVersion is set via -ldflags "-X pkt.systems/tbl/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the best available version string: the ldflags override
// when present, the module version stamped by `go install`, or a short VCS
// revision for local builds.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		if rev := vcsRevision(info); rev != "" {
			return "devel-" + rev
		}
	}
	return "devel"
}

// Module returns the module path from build info when available.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

func vcsRevision(info *debug.BuildInfo) string {
	var rev string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
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

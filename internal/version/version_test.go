package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestCurrentNeverEmpty(t *testing.T) {
	if strings.TrimSpace(Current()) == "" {
		t.Fatal("Current returned an empty version")
	}
}

func TestModuleFallsBackToKnownPath(t *testing.T) {
	if got := Module(); !strings.HasPrefix(got, defaultModule) {
		t.Fatalf("Module = %q, want prefix %q", got, defaultModule)
	}
}

func TestVCSRevision(t *testing.T) {
	cases := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"no vcs info", nil, ""},
		{"clean", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "false"},
		}, "0123456789ab"},
		{"dirty", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "true"},
		}, "0123456789ab-dirty"},
		{"short revision kept whole", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
		}, "abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := &debug.BuildInfo{Settings: tc.settings}
			if got := vcsRevision(info); got != tc.want {
				t.Fatalf("vcsRevision = %q, want %q", got, tc.want)
			}
		})
	}
}

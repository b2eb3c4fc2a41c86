package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func withBuildInfo(t *testing.T, mainVersion string, ok bool) {
	t.Helper()
	old := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		if !ok {
			return nil, false
		}
		return &debug.BuildInfo{Main: debug.Module{Path: "github.com/obentoo/lifter", Version: mainVersion}}, true
	}
	t.Cleanup(func() { readBuildInfo = old })
}

func TestShort(t *testing.T) {
	tests := []struct {
		name        string
		ldflags     string
		mainVersion string
		ok          bool
		want        string
	}{
		{"ldflags win", "1.4.0", "v1.3.0", true, "1.4.0"},
		{"module version", "dev", "v1.3.0", true, "v1.3.0"},
		{"devel build", "dev", "(devel)", true, "dev"},
		{"no build info", "dev", "", false, "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := Version
			Version = tt.ldflags
			defer func() { Version = old }()
			withBuildInfo(t, tt.mainVersion, tt.ok)

			if got := Short(); got != tt.want {
				t.Errorf("Short() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfoAndUserAgent(t *testing.T) {
	withBuildInfo(t, "", false)

	if !strings.HasPrefix(Info(), "lifter version dev\n") {
		t.Errorf("Info() = %q", Info())
	}
	if got := UserAgent(); got != "lifter/dev" {
		t.Errorf("UserAgent() = %q, want lifter/dev", got)
	}
}

package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestOverrideWins(t *testing.T) {
	info := &debug.BuildInfo{Main: debug.Module{Path: "pkt.systems/mounttab", Version: "v0.9.0"}}
	if got := fromBuildInfo(info, "v1.2.3+dirty").Version; got != "v1.2.3" {
		t.Fatalf("expected override version, got %q", got)
	}
}

func TestPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "pkt.systems/mounttab", Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := fromBuildInfo(info, "")
	if got.Version != "v0.0.0-20260102030405-1234567890ab" {
		t.Fatalf("unexpected version %q", got.Version)
	}
	if !got.Modified || !strings.Contains(got.String(), "+dirty") {
		t.Fatalf("expected dirty marker, got %q", got.String())
	}
}

func TestNilBuildInfo(t *testing.T) {
	got := fromBuildInfo(nil, "")
	if got.Version != "v0.0.0-unknown" || got.Module != defaultModule {
		t.Fatalf("unexpected info %+v", got)
	}
}

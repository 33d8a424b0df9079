package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/httpapi"
	"pkt.systems/mounttab/internal/eventbus"
	"pkt.systems/mounttab/internal/fstree"
	"pkt.systems/mounttab/internal/persist"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

func TestArgv0Alias(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "mounttabd", want: "serve"},
		{base: "mt", want: ""},
	}
	for _, tc := range tests {
		if got := argv0Alias(tc.base); got != tc.want {
			t.Fatalf("argv0Alias(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
	got := applyArgv0Alias([]string{"/usr/bin/mounttabd", "-c", "cfg.yaml"})
	if diff := cmp.Diff([]string{"/usr/bin/mounttabd", "serve", "-c", "cfg.yaml"}, got); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeState(t *testing.T, path string, urls ...string) {
	t.Helper()
	store, err := persist.NewStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Save(schema.NewWorkspace(urls...)); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestTabsPrintsStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.json")
	writeState(t, path, "https://a.example", "https://b.example")
	out, err := run(t, "tabs", "--state-file", path)
	if err != nil {
		t.Fatalf("tabs: %v", err)
	}
	if out != "https://a.example\nhttps://b.example\n" {
		t.Fatalf("unexpected output %q", out)
	}
	out, err = run(t, "tabs", "--state-file", path, "--json")
	if err != nil {
		t.Fatalf("tabs --json: %v", err)
	}
	if !strings.Contains(out, `"tabs"`) {
		t.Fatalf("expected state document, got %q", out)
	}
}

func TestTabsMissingFileIsEmpty(t *testing.T) {
	out, err := run(t, "tabs", "--state-file", filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("tabs: %v", err)
	}
	if out != "" {
		t.Fatalf("expected no output, got %q", out)
	}
}

func TestDiffBetweenStateFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from.json")
	writeState(t, from, "x.com", "y.com", "x.com")
	tree, err := fstree.Open(filepath.Join(dir, "workspace"))
	if err != nil {
		t.Fatalf("open tree: %v", err)
	}
	for _, tab := range []schema.Tab{
		{Name: "x.com", URL: "x.com", IsOpen: true},
		{Name: "z.com", URL: "z.com", IsOpen: true},
		{Name: "parked", URL: "y.com", IsOpen: false},
	} {
		if err := tree.WriteTab(tab); err != nil {
			t.Fatalf("write tab: %v", err)
		}
	}
	out, err := run(t, "diff", from, tree.Root())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	want := `{"OpenTab":"z.com"}` + "\n" + `{"CloseTab":"x.com"}` + "\n" + `{"CloseTab":"y.com"}` + "\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("unexpected diff output (-want +got):\n%s", diff)
	}

	out, err = run(t, "diff", "--lines", from, tree.Root())
	if err != nil {
		t.Fatalf("diff --lines: %v", err)
	}
	if !strings.Contains(out, "+z.com\n") || !strings.Contains(out, "-y.com\n") {
		t.Fatalf("unexpected line diff %q", out)
	}
}

func TestConfigInitWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := run(t, "config", "init", "-c", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	if _, err := run(t, "config", "init", "-c", path); err == nil {
		t.Fatalf("expected existing config to be kept without --force")
	}
	if _, err := run(t, "config", "init", "-c", path, "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestSendDeliversActionToSocket(t *testing.T) {
	bus := eventbus.New(nil, 0)
	manager := core.NewManager(schema.NewWorkspace("https://existing.example"), core.ManagerDeps{Bus: bus})
	replica := httpapi.NewReplica(httpapi.Config{Addr: "127.0.0.1:0"}, manager, bus, nil)
	if err := replica.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = replica.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	out, err := run(t, "send", "--addr", replica.Addr().String(), "--wait", "200ms", "open", "https://new.example")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, `{"OpenTab":"https://existing.example"}`) {
		t.Fatalf("expected initial sync in output, got %q", out)
	}
	deadline := time.Now().Add(2 * time.Second)
	for manager.Snapshot().Count("https://new.example") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("action never reached the workspace")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendRejectsUnknownVerb(t *testing.T) {
	if _, err := run(t, "send", "reload", "https://a.example"); err == nil {
		t.Fatalf("expected unknown verb error")
	}
}

func TestDefaultLogOptions(t *testing.T) {
	if got := defaultLogOptions(true); got.Mode != pslog.ModeConsole {
		t.Fatalf("expected console mode on a terminal, got %v", got.Mode)
	}
	if got := defaultLogOptions(false); got.Mode != pslog.ModeStructured || !got.NoColor {
		t.Fatalf("expected structured mode when piped, got %+v", got)
	}
}

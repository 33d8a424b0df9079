package fstree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/internal/eventbus"
	"pkt.systems/mounttab/schema"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

type harness struct {
	tree    *Tree
	bus     *eventbus.Bus
	manager *core.Manager
	browser <-chan schema.Envelope
}

func startReplica(t *testing.T, initial schema.Workspace, seed ...schema.Tab) *harness {
	t.Helper()
	tree, err := Open(filepath.Join(t.TempDir(), "workspace"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, tab := range seed {
		if err := tree.WriteTab(tab); err != nil {
			t.Fatalf("seed %s: %v", tab.Name, err)
		}
	}
	bus := eventbus.New(nil, 0)
	manager := core.NewManager(initial, core.ManagerDeps{Bus: bus})
	browser, cancelBrowser := bus.Subscribe(schema.SourceBrowser)
	t.Cleanup(cancelBrowser)

	replica := NewReplica(tree, manager, bus, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = replica.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitFor(t, time.Second, func() bool { return bus.Subscribers() == 2 })
	return &harness{tree: tree, bus: bus, manager: manager, browser: browser}
}

func (h *harness) tab(t *testing.T, name string) (schema.Tab, bool) {
	t.Helper()
	tab, ok, err := h.tree.ReadTab(name)
	if err != nil {
		t.Fatalf("read tab %s: %v", name, err)
	}
	return tab, ok
}

func (h *harness) expectBrowserEnvelope(t *testing.T, want schema.Action) {
	t.Helper()
	select {
	case env := <-h.browser:
		if env.Source != schema.SourceFilesystem || env.Action != want {
			t.Fatalf("expected filesystem %v, got %+v", want, env)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func TestReplicaMaterializesBrowserOpen(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace())
	if _, err := h.manager.Apply(schema.SourceBrowser, schema.OpenTab("z.com")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		tab, ok := h.tab(t, "z.com")
		return ok && tab.URL == "z.com" && tab.IsOpen
	})
	url, err := os.ReadFile(filepath.Join(h.tree.Dir("z.com"), URLFile))
	if err != nil || string(url) != "z.com" {
		t.Fatalf("unexpected url file %q (%v)", url, err)
	}
	open, err := os.ReadFile(filepath.Join(h.tree.Dir("z.com"), OpenFile))
	if err != nil || string(open) != "1" {
		t.Fatalf("unexpected is_open file %q (%v)", open, err)
	}
	select {
	case env := <-h.browser:
		t.Fatalf("browser received an unexpected envelope %+v", env)
	case <-time.After(150 * time.Millisecond):
	}
	if got := h.manager.Snapshot(); !got.Equivalent(schema.NewWorkspace("z.com")) {
		t.Fatalf("unexpected canonical workspace %v", got.Tabs)
	}
}

func TestReplicaDuplicateOpenUsesSuffix(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace())
	if _, err := h.manager.Apply(schema.SourceSocket, schema.OpenTab("z.com"), schema.OpenTab("z.com")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, first := h.tab(t, "z.com")
		_, second := h.tab(t, "z.com-2")
		return first && second
	})
}

func TestReplicaTranslatesUserEdits(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace())
	dir := filepath.Join(h.tree.Root(), "news")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, URLFile), []byte("https://news.example\n"), 0o644); err != nil {
		t.Fatalf("write url: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, OpenFile), []byte("1"), 0o644); err != nil {
		t.Fatalf("write is_open: %v", err)
	}
	h.expectBrowserEnvelope(t, schema.OpenTab("https://news.example"))

	if err := os.WriteFile(filepath.Join(dir, URLFile), []byte("https://other.example"), 0o644); err != nil {
		t.Fatalf("rewrite url: %v", err)
	}
	h.expectBrowserEnvelope(t, schema.CloseTab("https://news.example"))
	h.expectBrowserEnvelope(t, schema.OpenTab("https://other.example"))

	if err := os.WriteFile(filepath.Join(dir, OpenFile), []byte("0"), 0o644); err != nil {
		t.Fatalf("close: %v", err)
	}
	h.expectBrowserEnvelope(t, schema.CloseTab("https://other.example"))
	if got := h.manager.Snapshot(); got.Len() != 0 {
		t.Fatalf("expected empty canonical workspace, got %v", got.Tabs)
	}
}

func TestReplicaDirectoryRemovalClosesTab(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace("https://go.dev"),
		schema.Tab{Name: "docs", URL: "https://go.dev", IsOpen: true})
	if err := os.RemoveAll(h.tree.Dir("docs")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	h.expectBrowserEnvelope(t, schema.CloseTab("https://go.dev"))
}

func TestReplicaIgnoresDotEntries(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace())
	dir := filepath.Join(h.tree.Root(), ".scratch")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, URLFile), []byte("https://hidden.example"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case env := <-h.browser:
		t.Fatalf("unexpected envelope %+v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReplicaClosesByParkingAndReopens(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace())
	if _, err := h.manager.Apply(schema.SourceBrowser, schema.OpenTab("https://go.dev")); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		tab, ok := h.tab(t, "go.dev")
		return ok && tab.IsOpen
	})
	if _, err := h.manager.Apply(schema.SourceBrowser, schema.CloseTab("https://go.dev")); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		tab, ok := h.tab(t, "go.dev")
		return ok && !tab.IsOpen && tab.URL == "https://go.dev"
	})
	if _, err := h.manager.Apply(schema.SourceBrowser, schema.OpenTab("https://go.dev")); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		tab, ok := h.tab(t, "go.dev")
		return ok && tab.IsOpen
	})
	if _, ok := h.tab(t, "go.dev-2"); ok {
		t.Fatalf("expected parked directory to be reused")
	}
}

func TestReplicaStartupMaterializesCanonical(t *testing.T) {
	h := startReplica(t, schema.NewWorkspace("https://a.example", "https://kept.example"),
		schema.Tab{Name: "kept", URL: "https://kept.example", IsOpen: true},
		schema.Tab{Name: "stale", URL: "https://stale.example", IsOpen: true},
	)
	waitFor(t, 2*time.Second, func() bool {
		set, err := h.tree.Read()
		if err != nil {
			return false
		}
		return set.Projection().Equivalent(schema.NewWorkspace("https://a.example", "https://kept.example"))
	})
	stale, ok := h.tab(t, "stale")
	if !ok || stale.IsOpen {
		t.Fatalf("expected stale tab parked, got %+v ok=%v", stale, ok)
	}
}

package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pkt.systems/mounttab/schema"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []schema.Envelope
}

func (r *recordingPublisher) Publish(env schema.Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func (r *recordingPublisher) snapshot() []schema.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.Envelope(nil), r.envs...)
}

func TestManagerApplyPublishesChangedActions(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewManager(schema.NewWorkspace(), ManagerDeps{Bus: pub})
	applied, err := m.Apply(schema.SourceBrowser,
		schema.OpenTab("dup.com"),
		schema.OpenTab("dup.com"),
		schema.CloseTab("dup.com"),
		schema.CloseTab("missing.com"),
	)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected 3 applied envelopes, got %d", len(applied))
	}
	want := []schema.Envelope{
		{Source: schema.SourceBrowser, Action: schema.OpenTab("dup.com"), Seq: 1},
		{Source: schema.SourceBrowser, Action: schema.OpenTab("dup.com"), Seq: 2},
		{Source: schema.SourceBrowser, Action: schema.CloseTab("dup.com"), Seq: 3},
	}
	if diff := cmp.Diff(want, pub.snapshot()); diff != "" {
		t.Fatalf("unexpected published envelopes (-want +got):\n%s", diff)
	}
	ws, seq := m.SnapshotSeq()
	if diff := cmp.Diff([]string{"dup.com"}, ws.Tabs); diff != "" {
		t.Fatalf("unexpected workspace (-want +got):\n%s", diff)
	}
	if seq != 3 {
		t.Fatalf("expected seq 3, got %d", seq)
	}
}

func TestManagerApplyReportsRejectedActions(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewManager(schema.NewWorkspace(), ManagerDeps{Bus: pub})
	applied, err := m.Apply(schema.SourceSocket, schema.CreateTab("docs"), schema.OpenTab("a.com"))
	if !errors.Is(err, schema.ErrKeyedAction) {
		t.Fatalf("expected ErrKeyedAction, got %v", err)
	}
	if len(applied) != 1 || applied[0].Action != schema.OpenTab("a.com") {
		t.Fatalf("expected only OpenTab to apply, got %v", applied)
	}
}

func TestManagerRejectsUnknownSource(t *testing.T) {
	m := NewManager(schema.NewWorkspace(), ManagerDeps{})
	if _, err := m.Apply("printer", schema.OpenTab("a.com")); !errors.Is(err, schema.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
	if m.Snapshot().Len() != 0 {
		t.Fatalf("expected workspace untouched")
	}
}

func TestManagerReconcileConverges(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewManager(schema.NewWorkspace("a.com", "a.com", "b.com"), ManagerDeps{Bus: pub})
	target := schema.NewWorkspace("a.com", "c.com")
	applied, err := m.Reconcile(schema.SourceBrowser, target)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !m.Snapshot().Equivalent(target) {
		t.Fatalf("expected %v, got %v", target.Tabs, m.Snapshot().Tabs)
	}
	if len(applied) != 3 {
		t.Fatalf("expected 3 actions, got %v", applied)
	}
	for _, env := range pub.snapshot() {
		if env.Source != schema.SourceBrowser {
			t.Fatalf("expected browser source, got %v", env.Source)
		}
	}
	again, err := m.Reconcile(schema.SourceBrowser, target)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected converged reconcile to be a noop, got %v %v", again, err)
	}
}

func TestManagerReconcileAtSkipsStaleTarget(t *testing.T) {
	m := NewManager(schema.NewWorkspace(), ManagerDeps{})
	_, seen := m.SnapshotSeq()
	if _, err := m.Apply(schema.SourceSocket, schema.OpenTab("new.com")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	applied, stale, err := m.ReconcileAt(schema.SourceBrowser, seen, schema.NewWorkspace())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !stale || len(applied) != 0 {
		t.Fatalf("expected stale skip, got stale=%v applied=%v", stale, applied)
	}
	if m.Snapshot().Count("new.com") != 1 {
		t.Fatalf("stale target must not close new.com")
	}
	_, seen = m.SnapshotSeq()
	applied, stale, err = m.ReconcileAt(schema.SourceBrowser, seen, schema.NewWorkspace("new.com", "b.com"))
	if err != nil || stale {
		t.Fatalf("reconcile: stale=%v err=%v", stale, err)
	}
	if len(applied) != 1 || applied[0].Action != schema.OpenTab("b.com") {
		t.Fatalf("unexpected applied %v", applied)
	}
}

func TestManagerSnapshotIsCopy(t *testing.T) {
	m := NewManager(schema.NewWorkspace("a.com"), ManagerDeps{})
	snap := m.Snapshot()
	snap.Tabs[0] = "mutated"
	if m.Snapshot().Tabs[0] != "a.com" {
		t.Fatalf("snapshot aliases canonical workspace")
	}
}

func TestManagerConcurrentAppliesKeepSequence(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewManager(schema.NewWorkspace(), ManagerDeps{Bus: pub})
	var wg sync.WaitGroup
	for _, source := range []schema.Source{schema.SourceBrowser, schema.SourceFilesystem, schema.SourceSocket} {
		wg.Add(1)
		go func(source schema.Source) {
			defer wg.Done()
			for range 50 {
				if _, err := m.Apply(source, schema.OpenTab("x.com")); err != nil {
					t.Errorf("apply: %v", err)
				}
			}
		}(source)
	}
	wg.Wait()
	envs := pub.snapshot()
	if len(envs) != 150 {
		t.Fatalf("expected 150 envelopes, got %d", len(envs))
	}
	for i, env := range envs {
		if env.Seq != uint64(i+1) {
			t.Fatalf("envelope %d has seq %d", i, env.Seq)
		}
	}
	if got := m.Snapshot().Count("x.com"); got != 150 {
		t.Fatalf("expected 150 tabs, got %d", got)
	}
}

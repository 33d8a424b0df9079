package persist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pkt.systems/mounttab/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state", "browser-tabs.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing snapshot")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "browser-tabs.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ws := schema.NewWorkspace("https://a.com", "https://a.com", "https://b.com")
	if err := store.Save(ws); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(ws, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestStoreLoadOrInitCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser-tabs.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ws, err := store.LoadOrInit()
	if err != nil {
		t.Fatalf("load or init: %v", err)
	}
	if ws.Len() != 0 {
		t.Fatalf("expected empty workspace, got %v", ws.Tabs)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected state file to be written: %v", err)
	}
	if string(data) != "{\n  \"tabs\": []\n}\n" {
		t.Fatalf("unexpected initial document %q", data)
	}
	if !store.IsOwnWrite(data) {
		t.Fatalf("expected initial write to be recognized")
	}
}

func TestStoreMalformedFallsBackWithoutOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser-tabs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.Load(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	ws, err := store.LoadOrInit()
	if err != nil {
		t.Fatalf("load or init: %v", err)
	}
	if ws.Len() != 0 {
		t.Fatalf("expected empty workspace, got %v", ws.Tabs)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Fatalf("malformed file was overwritten: %q", data)
	}
}

func TestDecodeRequiresTabs(t *testing.T) {
	if _, err := Decode([]byte(`{"other":1}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	ws, err := Decode([]byte(`{"tabs":[" https://a.com\n", ""]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"https://a.com"}, ws.Tabs); diff != "" {
		t.Fatalf("unexpected tabs (-want +got):\n%s", diff)
	}
}

func TestDecodeAcceptsCommentsAndTrailingCommas(t *testing.T) {
	doc := `{
  // pinned
  "tabs": [
    "https://a.com", /* docs */
    "https://b.com",
  ],
}`
	ws, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"https://a.com", "https://b.com"}, ws.Tabs); diff != "" {
		t.Fatalf("unexpected tabs (-want +got):\n%s", diff)
	}
}

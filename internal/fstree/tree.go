package fstree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pkt.systems/mounttab/schema"
)

// File names inside a tab directory.
const (
	URLFile  = "url"
	OpenFile = "is_open"
)

// Tree is a directory-tree database of tabs: one directory per tab holding a
// url file and an is_open file ("1" or "0").
type Tree struct {
	root string
}

// Open prepares the tree rooted at root, creating it if needed. The root is
// resolved through symlinks so event paths can be mapped back to tab names.
func Open(root string) (*Tree, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, err
	}
	return &Tree{root: abs}, nil
}

// Root returns the resolved root directory.
func (t *Tree) Root() string {
	return t.root
}

// Dir returns the directory for the named tab.
func (t *Tree) Dir(name string) string {
	return filepath.Join(t.root, name)
}

// Read loads every tab directory. Dot-prefixed entries and plain files are skipped.
func (t *Tree) Read() (schema.TabSet, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return schema.TabSet{}, err
	}
	set := schema.NewTabSet()
	for _, entry := range entries {
		if !entry.IsDir() || schema.ValidateTabKey(entry.Name()) != nil {
			continue
		}
		tab, ok, err := t.ReadTab(entry.Name())
		if err != nil {
			return schema.TabSet{}, err
		}
		if ok {
			set.Tabs[tab.Name] = tab
		}
	}
	return set, nil
}

// ReadTab loads one tab. A missing url file reads as an empty url and a missing
// is_open file reads as closed.
func (t *Tree) ReadTab(name string) (schema.Tab, bool, error) {
	if err := schema.ValidateTabKey(name); err != nil {
		return schema.Tab{}, false, err
	}
	info, err := os.Stat(t.Dir(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schema.Tab{}, false, nil
		}
		return schema.Tab{}, false, err
	}
	if !info.IsDir() {
		return schema.Tab{}, false, nil
	}
	tab := schema.Tab{Name: name}
	url, err := readOptional(filepath.Join(t.Dir(name), URLFile))
	if err != nil {
		return schema.Tab{}, false, err
	}
	tab.URL = schema.NormalizeURL(url)
	open, err := readOptional(filepath.Join(t.Dir(name), OpenFile))
	if err != nil {
		return schema.Tab{}, false, err
	}
	tab.IsOpen = parseOpen(open)
	return tab, true, nil
}

// WriteTab creates or overwrites the tab directory.
func (t *Tree) WriteTab(tab schema.Tab) error {
	if err := schema.ValidateTabKey(tab.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(t.Dir(tab.Name), 0o755); err != nil {
		return err
	}
	if err := t.SetURL(tab.Name, tab.URL); err != nil {
		return err
	}
	return t.SetOpen(tab.Name, tab.IsOpen)
}

// SetURL writes the url file of an existing tab.
func (t *Tree) SetURL(name, url string) error {
	return writeFileAtomic(filepath.Join(t.Dir(name), URLFile), []byte(url))
}

// SetOpen writes the is_open file of an existing tab.
func (t *Tree) SetOpen(name string, open bool) error {
	value := "0"
	if open {
		value = "1"
	}
	return writeFileAtomic(filepath.Join(t.Dir(name), OpenFile), []byte(value))
}

// Remove deletes the tab directory.
func (t *Tree) Remove(name string) error {
	if err := schema.ValidateTabKey(name); err != nil {
		return err
	}
	return os.RemoveAll(t.Dir(name))
}

// Apply performs a keyed action on disk. Actions on absent tabs are no-ops.
func (t *Tree) Apply(action schema.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	name := action.Key
	if err := schema.ValidateTabKey(name); err != nil {
		return fmt.Errorf("%w: %q", err, name)
	}
	_, exists, err := t.ReadTab(name)
	if err != nil {
		return err
	}
	switch action.Kind {
	case schema.ActionCreateTab:
		if exists {
			return nil
		}
		return t.WriteTab(schema.Tab{Name: name})
	case schema.ActionRemoveTab:
		if !exists {
			return nil
		}
		return t.Remove(name)
	}
	if !exists {
		return nil
	}
	switch action.Kind {
	case schema.ActionChangeTabURL:
		return t.SetURL(name, action.URL)
	case schema.ActionOpenTab:
		return t.SetOpen(name, true)
	case schema.ActionCloseTab:
		return t.SetOpen(name, false)
	}
	return nil
}

// Rel maps a watcher event path to a tab name and the file inside the tab
// directory ("" for the directory itself). ok is false for the root, for
// dot-prefixed entries and for anything outside or deeper than a tab.
func (t *Tree) Rel(path string) (name, file string, ok bool) {
	rel, err := filepath.Rel(t.root, canonical(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) > 2 || schema.ValidateTabKey(parts[0]) != nil {
		return "", "", false
	}
	if len(parts) == 2 {
		if strings.HasPrefix(parts[1], ".") {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	return parts[0], "", true
}

// FreeName returns key, or key with the first free numeric suffix.
func FreeName(key string, taken func(string) bool) string {
	if !taken(key) {
		return key
	}
	for i := 2; ; i++ {
		candidate := key + "-" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// canonical resolves symlinks in the parent of path. The entry itself may
// already be gone, so only its directory is resolved.
func canonical(path string) string {
	path = filepath.Clean(path)
	dir, base := filepath.Split(path)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return path
}

func parseOpen(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "open":
		return true
	default:
		return false
	}
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

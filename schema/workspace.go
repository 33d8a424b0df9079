package schema

import "sort"

// Workspace is the URL-keyed multiset of open tabs. Order is not significant;
// duplicates are distinct tabs.
type Workspace struct {
	Tabs []string `json:"tabs"`
}

// NewWorkspace builds a workspace from the given urls.
func NewWorkspace(urls ...string) Workspace {
	return Workspace{Tabs: append([]string{}, urls...)}
}

// Clone returns a deep copy.
func (w Workspace) Clone() Workspace {
	return Workspace{Tabs: append([]string{}, w.Tabs...)}
}

// Len returns the number of tabs, counting duplicates.
func (w Workspace) Len() int {
	return len(w.Tabs)
}

// Count returns the number of occurrences of url.
func (w Workspace) Count(url string) int {
	n := 0
	for _, tab := range w.Tabs {
		if tab == url {
			n++
		}
	}
	return n
}

// Counts returns the occurrence count of every url.
func (w Workspace) Counts() map[string]int {
	counts := make(map[string]int, len(w.Tabs))
	for _, tab := range w.Tabs {
		counts[tab]++
	}
	return counts
}

// Sorted returns the urls in lexical order.
func (w Workspace) Sorted() []string {
	out := append([]string{}, w.Tabs...)
	sort.Strings(out)
	return out
}

// Equivalent reports whether both workspaces hold the same url multiset.
func (w Workspace) Equivalent(other Workspace) bool {
	if len(w.Tabs) != len(other.Tabs) {
		return false
	}
	counts := w.Counts()
	for _, tab := range other.Tabs {
		counts[tab]--
		if counts[tab] < 0 {
			return false
		}
	}
	return true
}

// Tab is one entry of the name-keyed model.
type Tab struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	IsOpen bool   `json:"is_open"`
}

// TabSet is the name-keyed tab model used by the directory tree.
type TabSet struct {
	Tabs map[string]Tab `json:"tabs"`
}

// NewTabSet builds a tab set from the given tabs; later duplicates win.
func NewTabSet(tabs ...Tab) TabSet {
	set := TabSet{Tabs: make(map[string]Tab, len(tabs))}
	for _, tab := range tabs {
		set.Tabs[tab.Name] = tab
	}
	return set
}

// Clone returns a deep copy.
func (s TabSet) Clone() TabSet {
	out := TabSet{Tabs: make(map[string]Tab, len(s.Tabs))}
	for name, tab := range s.Tabs {
		out.Tabs[name] = tab
	}
	return out
}

// Get returns the named tab.
func (s TabSet) Get(name string) (Tab, bool) {
	tab, ok := s.Tabs[name]
	return tab, ok
}

// Names returns the tab names in lexical order.
func (s TabSet) Names() []string {
	names := make([]string, 0, len(s.Tabs))
	for name := range s.Tabs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Projection returns the URL workspace formed by the open tabs that have a url.
func (s TabSet) Projection() Workspace {
	ws := Workspace{Tabs: []string{}}
	for _, name := range s.Names() {
		if url, ok := s.Tabs[name].Contribution(); ok {
			ws.Tabs = append(ws.Tabs, url)
		}
	}
	return ws
}

// Contribution returns the url this tab adds to the URL workspace, if any.
func (t Tab) Contribution() (string, bool) {
	if !t.IsOpen || t.URL == "" {
		return "", false
	}
	return t.URL, true
}

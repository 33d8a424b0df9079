package core

import "pkt.systems/mounttab/schema"

// ActionsFromDiff returns the actions that turn current into a workspace with
// the same url multiset as target. Opens come first in order of first
// appearance in target, then closes in order of first appearance in current.
// Equal or reordered inputs produce no actions.
func ActionsFromDiff(current, target schema.Workspace) []schema.Action {
	have := current.Counts()
	want := target.Counts()
	var actions []schema.Action
	seen := make(map[string]struct{}, len(want))
	for _, url := range target.Tabs {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		for i := have[url]; i < want[url]; i++ {
			actions = append(actions, schema.OpenTab(url))
		}
	}
	clear(seen)
	for _, url := range current.Tabs {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		for i := want[url]; i < have[url]; i++ {
			actions = append(actions, schema.CloseTab(url))
		}
	}
	return actions
}

// KeyedActionsFromDiff returns the name-keyed actions that turn current into
// target. Names are visited in lexical order.
func KeyedActionsFromDiff(current, target schema.TabSet) []schema.Action {
	var actions []schema.Action
	for _, name := range target.Names() {
		want := target.Tabs[name]
		have, ok := current.Tabs[name]
		if !ok {
			actions = append(actions, schema.CreateTab(name))
			have = schema.Tab{Name: name}
		}
		if have.URL != want.URL {
			actions = append(actions, schema.ChangeTabURL(name, want.URL))
		}
		if have.IsOpen != want.IsOpen {
			if want.IsOpen {
				actions = append(actions, schema.OpenTab(name))
			} else {
				actions = append(actions, schema.CloseTab(name))
			}
		}
	}
	for _, name := range current.Names() {
		if _, ok := target.Tabs[name]; !ok {
			actions = append(actions, schema.RemoveTab(name))
		}
	}
	return actions
}

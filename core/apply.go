package core

import (
	"fmt"

	"pkt.systems/mounttab/schema"
)

// Apply mutates the URL workspace with a single action. It reports whether the
// workspace changed. Closing an absent url is a no-op, not an error.
func Apply(ws *schema.Workspace, action schema.Action) (bool, error) {
	if err := action.Validate(); err != nil {
		return false, err
	}
	if action.Keyed() {
		return false, fmt.Errorf("%w: %s", schema.ErrKeyedAction, action.Kind)
	}
	switch action.Kind {
	case schema.ActionOpenTab:
		ws.Tabs = append(ws.Tabs, action.Key)
		return true, nil
	case schema.ActionCloseTab:
		for i, url := range ws.Tabs {
			if url == action.Key {
				ws.Tabs = append(ws.Tabs[:i], ws.Tabs[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// ApplyKeyed mutates a name-keyed tab set with a single action. Every variant
// addressing an absent name is a no-op; CreateTab on an existing name leaves
// the tab untouched.
func ApplyKeyed(set *schema.TabSet, action schema.Action) (bool, error) {
	if err := action.Validate(); err != nil {
		return false, err
	}
	if set.Tabs == nil {
		set.Tabs = make(map[string]schema.Tab)
	}
	name := action.Key
	tab, exists := set.Tabs[name]
	switch action.Kind {
	case schema.ActionCreateTab:
		if exists {
			return false, nil
		}
		set.Tabs[name] = schema.Tab{Name: name}
		return true, nil
	case schema.ActionRemoveTab:
		if !exists {
			return false, nil
		}
		delete(set.Tabs, name)
		return true, nil
	case schema.ActionChangeTabURL:
		if !exists || tab.URL == action.URL {
			return false, nil
		}
		tab.URL = action.URL
	case schema.ActionOpenTab:
		if !exists || tab.IsOpen {
			return false, nil
		}
		tab.IsOpen = true
	case schema.ActionCloseTab:
		if !exists || !tab.IsOpen {
			return false, nil
		}
		tab.IsOpen = false
	}
	set.Tabs[name] = tab
	return true, nil
}

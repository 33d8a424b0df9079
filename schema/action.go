package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ActionKind names a workspace action variant. The values double as the JSON keys.
type ActionKind string

const (
	// ActionOpenTab opens a tab (URL model) or marks a named tab open (keyed model).
	ActionOpenTab ActionKind = "OpenTab"
	// ActionCloseTab closes a tab (URL model) or marks a named tab closed (keyed model).
	ActionCloseTab ActionKind = "CloseTab"
	// ActionCreateTab creates an empty, closed, named tab.
	ActionCreateTab ActionKind = "CreateTab"
	// ActionRemoveTab deletes a named tab.
	ActionRemoveTab ActionKind = "RemoveTab"
	// ActionChangeTabURL sets the url of a named tab.
	ActionChangeTabURL ActionKind = "ChangeTabUrl"
)

// Action is a single workspace mutation.
//
// Key holds the URL for OpenTab/CloseTab in the URL model and the tab name for
// every keyed variant. URL is only used by ChangeTabUrl.
type Action struct {
	Kind ActionKind
	Key  string
	URL  string
}

// OpenTab returns an OpenTab action.
func OpenTab(key string) Action { return Action{Kind: ActionOpenTab, Key: key} }

// CloseTab returns a CloseTab action.
func CloseTab(key string) Action { return Action{Kind: ActionCloseTab, Key: key} }

// CreateTab returns a CreateTab action.
func CreateTab(name string) Action { return Action{Kind: ActionCreateTab, Key: name} }

// RemoveTab returns a RemoveTab action.
func RemoveTab(name string) Action { return Action{Kind: ActionRemoveTab, Key: name} }

// ChangeTabURL returns a ChangeTabUrl action.
func ChangeTabURL(name, url string) Action {
	return Action{Kind: ActionChangeTabURL, Key: name, URL: url}
}

// Keyed reports whether the variant only exists in the name-keyed model.
func (a Action) Keyed() bool {
	switch a.Kind {
	case ActionCreateTab, ActionRemoveTab, ActionChangeTabURL:
		return true
	default:
		return false
	}
}

// Validate checks that the action is a known variant with a usable key.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionOpenTab, ActionCloseTab, ActionCreateTab, ActionRemoveTab, ActionChangeTabURL:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, string(a.Kind))
	}
	if strings.TrimSpace(a.Key) == "" {
		return fmt.Errorf("%w: %s requires a non-empty key", ErrInvalidAction, a.Kind)
	}
	return nil
}

func (a Action) String() string {
	if a.Kind == ActionChangeTabURL {
		return fmt.Sprintf("%s(%q, %q)", a.Kind, a.Key, a.URL)
	}
	return fmt.Sprintf("%s(%q)", a.Kind, a.Key)
}

// MarshalJSON encodes the action as a single-key object, e.g. {"OpenTab":"https://example.com"}.
func (a Action) MarshalJSON() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var arg any = a.Key
	if a.Kind == ActionChangeTabURL {
		arg = [2]string{a.Key, a.URL}
	}
	return json.Marshal(map[string]any{string(a.Kind): arg})
}

// UnmarshalJSON decodes a single-key object; see ParseAction.
func (a *Action) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAction(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction is the only decoding boundary for actions. It rejects anything that
// is not exactly one recognized variant with a well-formed argument.
func ParseAction(data []byte) (Action, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Action{}, fmt.Errorf("%w: expected object", ErrUnknownAction)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrUnknownAction, err)
	}
	if len(raw) != 1 {
		return Action{}, fmt.Errorf("%w: expected exactly one variant, got %d", ErrUnknownAction, len(raw))
	}
	var action Action
	for key, value := range raw {
		kind := ActionKind(key)
		switch kind {
		case ActionOpenTab, ActionCloseTab, ActionCreateTab, ActionRemoveTab:
			var arg string
			if err := json.Unmarshal(value, &arg); err != nil {
				return Action{}, fmt.Errorf("%w: %s expects a string", ErrInvalidAction, kind)
			}
			action = Action{Kind: kind, Key: strings.TrimSpace(arg)}
		case ActionChangeTabURL:
			var args []string
			if err := json.Unmarshal(value, &args); err != nil || len(args) != 2 {
				return Action{}, fmt.Errorf("%w: %s expects [name, url]", ErrInvalidAction, kind)
			}
			action = Action{Kind: kind, Key: strings.TrimSpace(args[0]), URL: NormalizeURL(args[1])}
		default:
			return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, key)
		}
	}
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	return action, nil
}

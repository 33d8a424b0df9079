package schema

import "errors"

var (
	// ErrUnknownAction indicates a message that is not a recognized action variant.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidAction indicates a recognized variant with a malformed argument.
	ErrInvalidAction = errors.New("invalid action")
	// ErrKeyedAction indicates a name-keyed action sent to the URL-keyed workspace.
	ErrKeyedAction = errors.New("keyed action not supported by url workspace")
	// ErrInvalidTabKey indicates a tab directory name that cannot be used.
	ErrInvalidTabKey = errors.New("invalid tab key")
	// ErrInvalidSource indicates an unknown replica identity.
	ErrInvalidSource = errors.New("invalid source")
	// ErrBrowserUnavailable indicates the browser could not be reached.
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

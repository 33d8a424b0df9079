package browser

import (
	"context"

	"pkt.systems/mounttab/schema"
)

// Driver is a live connection to a browser.
type Driver interface {
	// Snapshot returns the urls of the open page tabs.
	Snapshot(ctx context.Context) (schema.Workspace, error)
	// OpenTab opens a new tab on url.
	OpenTab(ctx context.Context, url string) error
	// CloseTab closes one tab showing url. Closing an absent url is a no-op.
	CloseTab(ctx context.Context, url string) error
	// Disconnect releases the connection.
	Disconnect() error
}

// Connector establishes a Driver. Errors wrap schema.ErrBrowserUnavailable
// when the browser cannot be reached.
type Connector func(ctx context.Context) (Driver, error)

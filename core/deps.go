package core

import "pkt.systems/pslog"

// ManagerDeps captures optional dependencies for the workspace manager.
type ManagerDeps struct {
	Bus    Publisher
	Logger pslog.Logger
}

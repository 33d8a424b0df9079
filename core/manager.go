package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// Manager owns the canonical workspace. Every mutation goes through it and is
// published to the bus while the write lock is held, so the envelope order on
// the bus matches the order mutations were applied.
type Manager struct {
	mu     sync.RWMutex
	ws     schema.Workspace
	seq    uint64
	bus    Publisher
	logger pslog.Logger
}

// NewManager constructs a manager around the initial workspace.
func NewManager(initial schema.Workspace, deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := deps.Bus
	if bus == nil {
		bus = discardPublisher{}
	}
	ws := initial.Clone()
	if ws.Tabs == nil {
		ws.Tabs = []string{}
	}
	return &Manager{ws: ws, bus: bus, logger: logger}
}

// Snapshot returns a copy of the canonical workspace.
func (m *Manager) Snapshot() schema.Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ws.Clone()
}

// SnapshotSeq returns a copy of the canonical workspace and the sequence of
// the last applied envelope.
func (m *Manager) SnapshotSeq() (schema.Workspace, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ws.Clone(), m.seq
}

// Observe runs fn under the read lock. No mutation can be applied or
// published while fn runs.
func (m *Manager) Observe(fn func(ws schema.Workspace, seq uint64)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.ws.Clone(), m.seq)
}

// Apply applies the actions on behalf of source and publishes the ones that
// changed the workspace. Rejected actions are skipped and reported in the
// returned error; the rest are still applied.
func (m *Manager) Apply(source schema.Source, actions ...schema.Action) ([]schema.Envelope, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", schema.ErrInvalidSource, source)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(source, actions)
}

// Reconcile converges the canonical workspace to target in one tick. The diff,
// the mutations and the publishes all happen under the write lock.
func (m *Manager) Reconcile(source schema.Source, target schema.Workspace) ([]schema.Envelope, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", schema.ErrInvalidSource, source)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := ActionsFromDiff(m.ws, target)
	if len(actions) == 0 {
		return nil, nil
	}
	m.logger.Debug("workspace reconcile", "source", source, "actions", len(actions))
	return m.applyLocked(source, actions)
}

// ReconcileAt is Reconcile for replicas that track the last sequence they have
// seen. When the workspace has moved past seen, target was captured without
// those envelopes applied, so the tick is skipped and stale is true.
func (m *Manager) ReconcileAt(source schema.Source, seen uint64, target schema.Workspace) (applied []schema.Envelope, stale bool, err error) {
	if !source.Valid() {
		return nil, false, fmt.Errorf("%w: %q", schema.ErrInvalidSource, source)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq > seen {
		return nil, true, nil
	}
	actions := ActionsFromDiff(m.ws, target)
	if len(actions) == 0 {
		return nil, false, nil
	}
	m.logger.Debug("workspace reconcile", "source", source, "actions", len(actions))
	applied, err = m.applyLocked(source, actions)
	return applied, false, err
}

func (m *Manager) applyLocked(source schema.Source, actions []schema.Action) ([]schema.Envelope, error) {
	var (
		applied []schema.Envelope
		errs    []error
	)
	for _, action := range actions {
		changed, err := Apply(&m.ws, action)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", action, err))
			continue
		}
		if !changed {
			m.logger.Debug("workspace apply noop", "source", source, "action", action.String())
			continue
		}
		m.seq++
		env := schema.Envelope{Source: source, Action: action, Seq: m.seq}
		m.logger.Trace("workspace apply", "source", source, "action", action.String(), "seq", env.Seq)
		m.bus.Publish(env)
		applied = append(applied, env)
	}
	return applied, errors.Join(errs...)
}

type discardPublisher struct{}

func (discardPublisher) Publish(schema.Envelope) {}

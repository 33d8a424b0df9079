package browser

import (
	"context"
	"errors"
	"time"

	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/internal/backoff"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// ReplicaConfig tunes the browser replica.
type ReplicaConfig struct {
	PollInterval time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Replica polls a browser and keeps it in step with the canonical workspace.
type Replica struct {
	connect Connector
	manager *core.Manager
	bus     core.Subscriber
	cfg     ReplicaConfig
	log     pslog.Logger
}

// NewReplica constructs the browser replica.
func NewReplica(connect Connector, manager *core.Manager, bus core.Subscriber, cfg ReplicaConfig, logger pslog.Logger) *Replica {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = schema.DefaultPollInterval
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = schema.DefaultRetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = schema.DefaultRetryMax
	}
	return &Replica{
		connect: connect,
		manager: manager,
		bus:     bus,
		cfg:     cfg,
		log:     logger.With("source", schema.SourceBrowser),
	}
}

// Source returns the replica identity.
func (r *Replica) Source() schema.Source {
	return schema.SourceBrowser
}

// Run connects to the browser, retrying with backoff, and runs sessions until
// ctx is cancelled. A lost browser is never fatal.
func (r *Replica) Run(ctx context.Context) error {
	envs, cancel := r.bus.Subscribe(schema.SourceBrowser)
	defer cancel()
	retry := backoff.Backoff{Initial: r.cfg.RetryInitial, Max: r.cfg.RetryMax}
	for {
		drv, err := r.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := retry.Next()
			r.log.Warn("browser connect failed", "err", err, "attempt", retry.Attempt(), "retry_in", wait.String())
			if !r.idle(ctx, envs, wait) {
				return nil
			}
			continue
		}
		retry.Reset()
		err = r.session(ctx, drv, envs)
		if derr := drv.Disconnect(); derr != nil {
			r.log.Debug("browser disconnect failed", "err", derr)
		}
		if ctx.Err() != nil {
			r.log.Info("browser replica stopped")
			return nil
		}
		r.log.Warn("browser session ended", "err", err)
	}
}

// idle waits for d while discarding bus envelopes; the next session restores
// from the canonical workspace anyway. It returns false when ctx is done.
func (r *Replica) idle(ctx context.Context, envs <-chan schema.Envelope, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case _, ok := <-envs:
			if !ok {
				return false
			}
		}
	}
}

// session runs one connected period: restore, then poll and apply.
func (r *Replica) session(ctx context.Context, drv Driver, envs <-chan schema.Envelope) error {
	seen, err := r.restore(ctx, drv, envs, false)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-envs:
			if !ok {
				return nil
			}
			if seen, err = r.handle(ctx, drv, env, seen); err != nil {
				return err
			}
		case <-ticker.C:
			seen, err = r.poll(ctx, drv, envs, seen)
			if err != nil {
				return err
			}
		}
	}
}

// restore drains pending envelopes and opens every canonical tab the browser
// lacks. With closeExtra it also closes browser tabs the workspace does not
// hold, which is used after envelopes were lost.
func (r *Replica) restore(ctx context.Context, drv Driver, envs <-chan schema.Envelope, closeExtra bool) (uint64, error) {
	drain(envs)
	snap, err := drv.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	canonical, seq := r.manager.SnapshotSeq()
	opened, closed := 0, 0
	for _, action := range core.ActionsFromDiff(snap, canonical) {
		switch action.Kind {
		case schema.ActionOpenTab:
			if err := drv.OpenTab(ctx, action.Key); err != nil {
				return 0, err
			}
			opened++
		case schema.ActionCloseTab:
			if !closeExtra {
				continue
			}
			if err := drv.CloseTab(ctx, action.Key); err != nil {
				return 0, err
			}
			closed++
		}
	}
	if opened > 0 || closed > 0 {
		r.log.Info("browser restored", "opened", opened, "closed", closed)
	}
	return seq, nil
}

// poll captures the browser and converges the canonical workspace to it.
func (r *Replica) poll(ctx context.Context, drv Driver, envs <-chan schema.Envelope, seen uint64) (uint64, error) {
	seen, err := r.applyPending(ctx, drv, envs, seen)
	if err != nil {
		return seen, err
	}
	snap, err := drv.Snapshot(ctx)
	if err != nil {
		return seen, err
	}
	applied, stale, err := r.manager.ReconcileAt(schema.SourceBrowser, seen, snap)
	if err != nil {
		r.log.Warn("browser reconcile failed", "err", err)
	}
	if stale {
		if len(envs) > 0 {
			// Newer envelopes are queued; apply them before the next tick.
			return seen, nil
		}
		r.log.Warn("browser missed bus actions; resyncing from workspace")
		return r.restore(ctx, drv, envs, true)
	}
	for _, env := range applied {
		seen = max(seen, env.Seq)
	}
	if len(applied) > 0 {
		r.log.Debug("browser changes published", "actions", len(applied))
	}
	return seen, nil
}

func (r *Replica) applyPending(ctx context.Context, drv Driver, envs <-chan schema.Envelope, seen uint64) (uint64, error) {
	for {
		select {
		case env, ok := <-envs:
			if !ok {
				return seen, nil
			}
			var err error
			if seen, err = r.handle(ctx, drv, env, seen); err != nil {
				return seen, err
			}
		default:
			return seen, nil
		}
	}
}

// handle applies env unless a restore already captured it.
func (r *Replica) handle(ctx context.Context, drv Driver, env schema.Envelope, seen uint64) (uint64, error) {
	if env.Seq <= seen {
		return seen, nil
	}
	if err := r.apply(ctx, drv, env); err != nil {
		return seen, err
	}
	return env.Seq, nil
}

// apply performs an envelope from another replica on the browser. Only a lost
// browser is returned; other failures are logged.
func (r *Replica) apply(ctx context.Context, drv Driver, env schema.Envelope) error {
	if env.IsEcho(schema.SourceBrowser) {
		return nil
	}
	var err error
	switch env.Action.Kind {
	case schema.ActionOpenTab:
		err = drv.OpenTab(ctx, env.Action.Key)
	case schema.ActionCloseTab:
		err = drv.CloseTab(ctx, env.Action.Key)
	default:
		r.log.Debug("browser action ignored", "action", env.Action.String())
		return nil
	}
	if err == nil {
		r.log.Trace("browser action applied", "action", env.Action.String(), "from", env.Source)
		return nil
	}
	if errors.Is(err, schema.ErrBrowserUnavailable) || ctx.Err() != nil {
		return err
	}
	r.log.Warn("browser action failed", "action", env.Action.String(), "err", err)
	return nil
}

func drain(envs <-chan schema.Envelope) {
	for {
		select {
		case _, ok := <-envs:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

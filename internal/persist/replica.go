package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// ReplicaConfig tunes the state file replica.
type ReplicaConfig struct {
	// SaveDebounce coalesces bursts of bus actions into one write. Zero saves
	// after every action.
	SaveDebounce time.Duration
	// Watch enables reloading the file when something else edits it.
	Watch         bool
	WatchDebounce time.Duration
}

// Replica mirrors the canonical workspace into the JSON state file.
type Replica struct {
	store   *Store
	manager *core.Manager
	bus     core.Subscriber
	cfg     ReplicaConfig
	log     pslog.Logger
}

// NewReplica constructs the state file replica.
func NewReplica(store *Store, manager *core.Manager, bus core.Subscriber, cfg ReplicaConfig, logger pslog.Logger) *Replica {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = schema.DefaultWatchDebounce
	}
	return &Replica{
		store:   store,
		manager: manager,
		bus:     bus,
		cfg:     cfg,
		log:     logger.With("source", schema.SourcePersist),
	}
}

// Source returns the replica identity.
func (r *Replica) Source() schema.Source {
	return schema.SourcePersist
}

// Run saves on every foreign action and, when enabled, reloads external edits
// until ctx is cancelled. Pending saves are flushed on the way out.
func (r *Replica) Run(ctx context.Context) error {
	var (
		watchEvents <-chan fsnotify.Event
		watchErrors <-chan error
	)
	if r.cfg.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(r.store.Path())); err != nil {
			return err
		}
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}
	envs, cancel := r.bus.Subscribe(schema.SourcePersist)
	defer cancel()
	r.log.Info("persist replica started", "watch", r.cfg.Watch)
	if _, seq := r.manager.SnapshotSeq(); seq > 0 {
		// Actions were applied before the subscription existed.
		r.save()
	}

	name := filepath.Base(r.store.Path())
	dirty := false
	saveTimer := newIdleTimer()
	defer saveTimer.Stop()
	reloadTimer := newIdleTimer()
	defer reloadTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			if dirty {
				r.save()
			}
			r.log.Info("persist replica stopped")
			return nil
		case env, ok := <-envs:
			if !ok {
				return nil
			}
			if env.IsEcho(schema.SourcePersist) {
				continue
			}
			if r.cfg.SaveDebounce <= 0 {
				r.save()
				continue
			}
			dirty = true
			saveTimer.Reset(r.cfg.SaveDebounce)
		case <-saveTimer.C:
			if dirty {
				dirty = false
				r.save()
			}
		case event, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			reloadTimer.Reset(r.cfg.WatchDebounce)
		case <-reloadTimer.C:
			r.reload()
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			r.log.Warn("persist watch error", "err", err)
		}
	}
}

func (r *Replica) save() {
	if err := r.store.Save(r.manager.Snapshot()); err != nil {
		r.log.Warn("persist save failed", "err", err)
	}
}

// reload applies an external edit of the state file to the canonical workspace.
func (r *Replica) reload() {
	data, err := os.ReadFile(r.store.Path())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("persist reload failed", "err", err)
		}
		return
	}
	if r.store.IsOwnWrite(data) {
		r.log.Trace("persist reload skipped own write")
		return
	}
	ws, err := Decode(data)
	if err != nil {
		r.log.Warn("persist reload ignored", "err", err)
		return
	}
	applied, err := r.manager.Reconcile(schema.SourcePersist, ws)
	if err != nil {
		r.log.Warn("persist reconcile failed", "err", err)
	}
	if len(applied) > 0 {
		r.log.Info("persist external edit applied", "actions", len(applied))
	}
}

// newIdleTimer returns a stopped timer that can be armed with Reset.
func newIdleTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

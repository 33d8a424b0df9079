package fstree

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/internal/logx"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// Replica mirrors the canonical workspace into a Tree. It keeps a private
// name-keyed mirror of the tree and projects every keyed change into URL
// actions before anything reaches the canonical workspace.
type Replica struct {
	tree     *Tree
	manager  *core.Manager
	bus      core.Subscriber
	debounce time.Duration
	log      pslog.Logger

	// mirror and watcher are owned by the Run goroutine.
	mirror  schema.TabSet
	watcher *fsnotify.Watcher
}

// NewReplica constructs the filesystem replica.
func NewReplica(tree *Tree, manager *core.Manager, bus core.Subscriber, debounce time.Duration, logger pslog.Logger) *Replica {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if debounce <= 0 {
		debounce = schema.DefaultWatchDebounce
	}
	return &Replica{
		tree:     tree,
		manager:  manager,
		bus:      bus,
		debounce: debounce,
		log:      logger.With("source", schema.SourceFilesystem, "root", tree.Root()),
	}
}

// Source returns the replica identity.
func (r *Replica) Source() schema.Source {
	return schema.SourceFilesystem
}

// Run materializes the canonical workspace into the tree, then translates
// tree edits into actions and bus actions into tree edits until ctx is done.
func (r *Replica) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	r.watcher = watcher
	if err := watcher.Add(r.tree.Root()); err != nil {
		return err
	}
	mirror, err := r.tree.Read()
	if err != nil {
		return err
	}
	r.mirror = mirror
	for _, name := range r.mirror.Names() {
		r.watchTab(name)
	}

	var (
		envs      <-chan schema.Envelope
		cancel    func()
		canonical schema.Workspace
	)
	r.manager.Observe(func(ws schema.Workspace, _ uint64) {
		envs, cancel = r.bus.Subscribe(schema.SourceFilesystem)
		canonical = ws
	})
	defer cancel()

	for _, action := range core.ActionsFromDiff(r.mirror.Projection(), canonical) {
		r.applyInbound(action)
	}
	r.log.Info("fs replica started", "tabs", len(r.mirror.Tabs))

	dirty := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("fs replica stopped")
			return nil
		case env, ok := <-envs:
			if !ok {
				return nil
			}
			if env.IsEcho(schema.SourceFilesystem) {
				continue
			}
			r.applyInbound(env.Action)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, file, ok := r.tree.Rel(event.Name)
			if !ok {
				r.log.Debug("fs event ignored", "path", event.Name, "op", event.Op.String())
				continue
			}
			if file != "" && file != URLFile && file != OpenFile {
				r.log.Debug("fs event ignored", "path", event.Name, "op", event.Op.String())
				continue
			}
			if file == "" && event.Has(fsnotify.Create) {
				r.watchTab(name)
			}
			dirty[name] = struct{}{}
			timer.Reset(r.debounce)
		case <-timer.C:
			r.syncDirty(dirty)
			clear(dirty)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("fs watch error", "err", err)
		}
	}
}

func (r *Replica) watchTab(name string) {
	if err := r.watcher.Add(r.tree.Dir(name)); err != nil {
		logx.WithTab(r.log, name).Debug("fs watch tab failed", "err", err)
	}
}

// syncDirty compares each touched tab on disk against the mirror and applies
// the projected URL actions to the canonical workspace.
func (r *Replica) syncDirty(dirty map[string]struct{}) {
	var actions []schema.Action
	for name := range dirty {
		actions = append(actions, r.syncTab(name)...)
	}
	if len(actions) == 0 {
		return
	}
	if _, err := r.manager.Apply(schema.SourceFilesystem, actions...); err != nil {
		r.log.Warn("fs apply failed", "err", err)
	}
}

func (r *Replica) syncTab(name string) []schema.Action {
	log := logx.WithTab(r.log, name)
	disk, exists, err := r.tree.ReadTab(name)
	if err != nil {
		log.Warn("fs read tab failed", "err", err)
		return nil
	}
	before, had := r.mirror.Get(name)
	current := schema.NewTabSet()
	if had {
		current.Tabs[name] = before
	}
	target := schema.NewTabSet()
	if exists {
		target.Tabs[name] = disk
	}
	keyed := core.KeyedActionsFromDiff(current, target)
	if len(keyed) == 0 {
		return nil
	}
	for _, action := range keyed {
		if _, err := core.ApplyKeyed(&r.mirror, action); err != nil {
			log.Warn("fs mirror apply failed", "action", action.String(), "err", err)
			continue
		}
		log.Debug("fs tab changed", "action", action.String())
	}
	after, _ := r.mirror.Get(name)
	return projectChange(before, after)
}

// projectChange turns one tab's before/after state into URL actions.
func projectChange(before, after schema.Tab) []schema.Action {
	oldURL, hadOld := before.Contribution()
	newURL, hasNew := after.Contribution()
	if hadOld && hasNew && oldURL == newURL {
		return nil
	}
	var actions []schema.Action
	if hadOld {
		actions = append(actions, schema.CloseTab(oldURL))
	}
	if hasNew {
		actions = append(actions, schema.OpenTab(newURL))
	}
	return actions
}

// applyInbound performs a URL action from another replica on the tree. The
// mirror is updated first so the resulting watcher events compare equal.
func (r *Replica) applyInbound(action schema.Action) {
	log := logx.WithURL(r.log, action.Key)
	var keyed []schema.Action
	switch action.Kind {
	case schema.ActionOpenTab:
		if name, ok := r.find(action.Key, false); ok {
			keyed = []schema.Action{schema.OpenTab(name)}
			break
		}
		name := FreeName(schema.TabKeyForURL(action.Key), func(candidate string) bool {
			if _, ok := r.mirror.Get(candidate); ok {
				return true
			}
			_, exists, _ := r.tree.ReadTab(candidate)
			return exists
		})
		keyed = []schema.Action{
			schema.CreateTab(name),
			schema.ChangeTabURL(name, action.Key),
			schema.OpenTab(name),
		}
	case schema.ActionCloseTab:
		name, ok := r.find(action.Key, true)
		if !ok {
			log.Debug("fs close noop")
			return
		}
		keyed = []schema.Action{schema.CloseTab(name)}
	default:
		log.Debug("fs inbound ignored", "action", action.String())
		return
	}
	for _, step := range keyed {
		if _, err := core.ApplyKeyed(&r.mirror, step); err != nil {
			log.Warn("fs mirror apply failed", "action", step.String(), "err", err)
			return
		}
		if err := r.tree.Apply(step); err != nil {
			log.Warn("fs write failed", "action", step.String(), "err", err)
			return
		}
		if step.Kind == schema.ActionCreateTab {
			r.watchTab(step.Key)
		}
	}
	log.Debug("fs inbound applied", "action", action.String())
}

// find returns the first tab, by name, holding url in the wanted open state.
func (r *Replica) find(url string, open bool) (string, bool) {
	for _, name := range r.mirror.Names() {
		tab := r.mirror.Tabs[name]
		if tab.URL == url && tab.IsOpen == open {
			return name, true
		}
	}
	return "", false
}

package mounttab

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/httpapi"
	"pkt.systems/mounttab/internal/browser"
	"pkt.systems/mounttab/internal/eventbus"
	"pkt.systems/mounttab/internal/fstree"
	"pkt.systems/mounttab/internal/logx"
	"pkt.systems/mounttab/internal/persist"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// Engine keeps every enabled replica in step with the canonical workspace.
type Engine interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Manager exposes the canonical workspace.
	Manager() *core.Manager
}

// EngineConfig configures the compositor.
type EngineConfig struct {
	Engine  schema.EngineConfig
	Browser browser.Config
	Socket  httpapi.Config
}

// EngineDeps captures dependencies required to build the engine.
type EngineDeps struct {
	Logger pslog.Logger
	// Connector replaces the chromedp connector.
	Connector browser.Connector
}

// EngineOption toggles replicas. The state file replica is always on.
type EngineOption func(*engineOptions)

type engineOptions struct {
	enableBrowser    bool
	enableFilesystem bool
	enableSocket     bool
}

// WithBrowser enables the browser replica.
func WithBrowser() EngineOption {
	return func(o *engineOptions) { o.enableBrowser = true }
}

// WithFilesystem enables the directory-tree replica.
func WithFilesystem() EngineOption {
	return func(o *engineOptions) { o.enableFilesystem = true }
}

// WithSocket enables the websocket replica.
func WithSocket() EngineOption {
	return func(o *engineOptions) { o.enableSocket = true }
}

// New loads the persisted workspace and constructs the enabled replicas.
// Failing to create the state directory or the workspace root is fatal.
func New(cfg EngineConfig, deps EngineDeps, opts ...EngineOption) (Engine, error) {
	options := engineOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	normalized, err := schema.NormalizeEngineConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	cfg.Engine = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	store, err := persist.NewStoreWithLogger(cfg.Engine.StateFile, logger)
	if err != nil {
		return nil, fmt.Errorf("state file: %w", err)
	}
	initial, err := store.LoadOrInit()
	if err != nil {
		return nil, fmt.Errorf("state file: %w", err)
	}
	bus := eventbus.New(logger, cfg.Engine.BusDepth)
	manager := core.NewManager(initial, core.ManagerDeps{Bus: bus, Logger: logger})

	replicas := []core.Replica{
		persist.NewReplica(store, manager, bus, persist.ReplicaConfig{
			SaveDebounce:  cfg.Engine.SaveDebounce,
			Watch:         cfg.Engine.WatchStateFile,
			WatchDebounce: cfg.Engine.WatchDebounce,
		}, logger),
	}
	if options.enableFilesystem {
		tree, err := fstree.Open(cfg.Engine.WorkspaceDir)
		if err != nil {
			return nil, fmt.Errorf("workspace root: %w", err)
		}
		replicas = append(replicas, fstree.NewReplica(tree, manager, bus, cfg.Engine.WatchDebounce, logger))
	}
	if options.enableBrowser {
		connect := deps.Connector
		if connect == nil {
			connect = browser.NewConnector(cfg.Browser, logger.With("source", schema.SourceBrowser))
		}
		replicas = append(replicas, browser.NewReplica(connect, manager, bus, browser.ReplicaConfig{
			PollInterval: cfg.Engine.PollInterval,
			RetryInitial: cfg.Engine.RetryInitial,
			RetryMax:     cfg.Engine.RetryMax,
		}, logger))
	}
	var socket *httpapi.Replica
	if options.enableSocket {
		socket = httpapi.NewReplica(cfg.Socket, manager, bus, logger)
		replicas = append(replicas, socket)
	}

	return &engine{
		cfg:      cfg,
		options:  options,
		manager:  manager,
		bus:      bus,
		replicas: replicas,
		socket:   socket,
		logger:   logger,
	}, nil
}

type engine struct {
	cfg      EngineConfig
	options  engineOptions
	manager  *core.Manager
	bus      *eventbus.Bus
	replicas []core.Replica
	socket   *httpapi.Replica
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started bool
}

func (e *engine) Manager() *core.Manager {
	return e.manager
}

func (e *engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		pslog.Ctx(ctx).Warn("engine start rejected", "reason", "already started")
		return errors.New("engine already started")
	}
	if e.socket != nil {
		if err := e.socket.Listen(); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.ctx, e.cancel = context.WithCancel(pslog.ContextWithLogger(ctx, e.logger))
	e.done = make(chan struct{})
	e.started = true
	e.mu.Unlock()

	e.logger.Info(
		"engine start",
		"browser", e.options.enableBrowser,
		"filesystem", e.options.enableFilesystem,
		"socket", e.options.enableSocket,
		"workspace_dir", e.cfg.Engine.WorkspaceDir,
		"state_file", e.cfg.Engine.StateFile,
		"tabs", e.manager.Snapshot().Len(),
	)
	g, gctx := errgroup.WithContext(e.ctx)
	for _, replica := range e.replicas {
		g.Go(func() error {
			rctx := logx.ContextWithSourceLogger(gctx, replica.Source())
			if err := replica.Run(rctx); err != nil {
				logx.Ctx(rctx).Error("replica failed", "err", err)
				return fmt.Errorf("%s replica: %w", replica.Source(), err)
			}
			return nil
		})
	}
	go func() {
		err := g.Wait()
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	}()
	return nil
}

// Wait blocks until every replica has returned, either because the engine
// was stopped or because one replica failed.
func (e *engine) Wait() error {
	e.mu.Lock()
	done := e.done
	started := e.started
	e.mu.Unlock()
	if !started {
		return errors.New("engine not started")
	}
	<-done
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		e.logger.Error("engine stopped", "err", e.err)
	}
	return e.err
}

func (e *engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil
	}
	e.logger.Info("engine stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		e.logger.Warn("engine stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		e.logger.Info("engine stopped", "bus_dropped", e.bus.Dropped())
		return nil
	}
}

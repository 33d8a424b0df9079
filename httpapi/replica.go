package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// Replica is the socket replica: every connected websocket client is a view
// of the canonical workspace.
type Replica struct {
	cfg    Config
	server *Server
	bus    core.Subscriber
	log    pslog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewReplica constructs the socket replica.
func NewReplica(cfg Config, manager *core.Manager, bus core.Subscriber, logger pslog.Logger) *Replica {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("source", schema.SourceSocket)
	return &Replica{
		cfg:    cfg,
		server: NewServer(cfg, manager, logger),
		bus:    bus,
		log:    logger,
	}
}

// Source returns the replica identity.
func (r *Replica) Source() schema.Source {
	return schema.SourceSocket
}

// Handler returns the HTTP handler serving the replica.
func (r *Replica) Handler() http.Handler {
	return r.server.Handler()
}

// Listen binds the configured address. It is called by Run when needed;
// calling it earlier surfaces bind failures at startup.
func (r *Replica) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return fmt.Errorf("socket listen %s: %w", r.cfg.Addr, err)
	}
	r.ln = ln
	r.log.Info("socket listening", "addr", ln.Addr().String(), "path", r.cfg.Path)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (r *Replica) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// Run serves clients and forwards bus envelopes to them until ctx is cancelled.
func (r *Replica) Run(ctx context.Context) error {
	if err := r.Listen(); err != nil {
		return err
	}
	r.mu.Lock()
	ln := r.ln
	r.mu.Unlock()

	envs, cancel := r.bus.Subscribe(schema.SourceSocket)
	defer cancel()
	ctx = pslog.ContextWithLogger(ctx, r.log)
	hub := r.server.Hub()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return Serve(gctx, ln, r.server.Handler())
	})
	g.Go(func() error {
		defer hub.closeAll()
		for {
			select {
			case <-gctx.Done():
				return nil
			case env, ok := <-envs:
				if !ok {
					return nil
				}
				hub.deliver(env)
			}
		}
	})
	err := g.Wait()
	r.log.Info("socket replica stopped")
	return err
}

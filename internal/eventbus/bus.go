package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// DefaultDepth is the per-subscriber buffer size.
const DefaultDepth = 256

type subscriber struct {
	self schema.Source
	ch   chan schema.Envelope
}

// Bus fans envelopes out to every subscriber except the one whose identity
// matches the envelope source.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	log     pslog.Logger
	depth   int
	dropped atomic.Uint64
}

// New constructs a Bus. A depth <= 0 selects DefaultDepth.
func New(logger pslog.Logger, depth int) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Bus{
		subs:  make(map[*subscriber]struct{}),
		log:   logger,
		depth: depth,
	}
}

// Subscribe registers a subscriber identified as self and returns a channel +
// cancel. Envelopes published by self are never delivered on the channel.
func (b *Bus) Subscribe(self schema.Source) (<-chan schema.Envelope, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{self: self, ch: make(chan schema.Envelope, b.depth)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.With("source", self).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			close(sub.ch)
			b.mu.Unlock()
			b.log.With("source", self).Debug("eventbus unsubscribe")
		})
	}
}

// Publish delivers env to every non-echo subscriber without blocking. Envelopes
// that do not fit a subscriber's buffer are dropped and counted.
func (b *Bus) Publish(env schema.Envelope) {
	if b == nil {
		return
	}
	b.mu.RLock()
	dropped := 0
	for sub := range b.subs {
		if env.IsEcho(sub.self) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			dropped++
			b.log.With("source", sub.self).Trace("eventbus dropped", "action", env.Action.String(), "seq", env.Seq)
		}
	}
	b.mu.RUnlock()
	if dropped > 0 {
		b.dropped.Add(uint64(dropped))
	}
}

// Dropped returns the number of envelopes dropped since the bus was created.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

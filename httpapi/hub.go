package httpapi

import (
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// client is one websocket connection. send is closed exactly once, by the hub.
type client struct {
	id    string
	conn  *websocket.Conn
	send  chan schema.Action
	since uint64
	log   pslog.Logger
}

// Hub fans actions out to connected socket clients.
//
// Lock order is hub.mu before the manager lock: socket actions are applied
// while holding hub.mu so peer relays and bus deliveries cannot interleave.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	manager *core.Manager
	buffer  int
	log     pslog.Logger
}

// NewHub constructs a hub bound to the canonical workspace.
func NewHub(manager *core.Manager, sendBuffer int, logger pslog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		manager: manager,
		buffer:  sendBuffer,
		log:     logger,
	}
}

// register adds c and queues the canonical workspace as OpenTab actions. It
// returns the number of queued actions.
func (h *Hub) register(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var initial []schema.Action
	h.manager.Observe(func(ws schema.Workspace, seq uint64) {
		initial = core.ActionsFromDiff(schema.NewWorkspace(), ws)
		c.since = seq
	})
	c.send = make(chan schema.Action, len(initial)+h.buffer)
	for _, action := range initial {
		c.send <- action
	}
	h.clients[c] = struct{}{}
	return len(initial)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// apply commits an action received from c and relays what changed to the
// other clients.
func (h *Hub) apply(c *client, action schema.Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	applied, err := h.manager.Apply(schema.SourceSocket, action)
	if err != nil {
		c.log.Warn("socket action rejected", "action", action.String(), "err", err)
		return
	}
	if len(applied) == 0 {
		c.log.Debug("socket action noop", "action", action.String())
		return
	}
	for _, env := range applied {
		c.log.Trace("socket action applied", "action", env.Action.String(), "seq", env.Seq)
		for peer := range h.clients {
			if peer == c {
				continue
			}
			h.enqueueLocked(peer, env)
		}
	}
}

// deliver forwards an envelope from another replica to every client.
func (h *Hub) deliver(env schema.Envelope) {
	if env.IsEcho(schema.SourceSocket) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, env)
	}
}

func (h *Hub) enqueueLocked(c *client, env schema.Envelope) {
	if env.Seq <= c.since {
		// Already part of the client's initial sync.
		return
	}
	select {
	case c.send <- env.Action:
	default:
		c.log.Warn("socket client too slow; disconnecting", "queued", len(c.send))
		h.removeLocked(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// IDs returns the connection ids of the connected clients in ulid order,
// which is connection order.
func (h *Hub) IDs() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for c := range h.clients {
		ids = append(ids, c.id)
	}
	h.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/internal/logx"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// Server serves the socket endpoint and the read-only workspace routes.
type Server struct {
	cfg      Config
	manager  *core.Manager
	hub      *Hub
	upgrader websocket.Upgrader
	log      pslog.Logger
}

// NewServer constructs a socket server.
func NewServer(cfg Config, manager *core.Manager, logger pslog.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Server{
		cfg:     cfg,
		manager: manager,
		hub:     NewHub(manager, cfg.SendBuffer, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		log: logger,
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and, when allowed is non-empty, browser clients whose origin is
// listed. Matching ignores case.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(strings.TrimRight(candidate, "/"), origin) {
				return true
			}
		}
		return false
	}
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleSocket)
	mux.HandleFunc("/tabs", s.handleTabs)
	mux.HandleFunc("/healthz", s.handleHealth)
	return withRequestLogging(mux)
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ids := s.hub.IDs()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "clients": len(ids), "client_ids": ids})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	id := ulid.Make().String()
	conn, err := s.upgrader.Upgrade(w, r, http.Header{ClientIDHeader: []string{id}})
	if err != nil {
		log.Warn("socket upgrade failed", "err", err, "origin", r.Header.Get("Origin"))
		return
	}
	c := &client{
		id:   id,
		conn: conn,
		log:  logx.WithConn(r.Context(), id).With("remote", clientIP(r)),
	}
	initial := s.hub.register(c)
	c.log.Info("socket client connected", "initial", initial, "clients", s.hub.Len())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(c)
	}()
	s.readPump(c)
	s.hub.unregister(c)
	<-done
	c.log.Info("socket client disconnected", "clients", s.hub.Len())
}

func (s *Server) pongWait() time.Duration {
	return 2 * s.cfg.PingInterval
}

// readPump decodes inbound actions until the connection fails. Malformed
// messages are dropped; the connection stays open.
func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("socket read failed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			c.log.Warn("socket message dropped", "reason", "not a text message")
			continue
		}
		action, err := schema.ParseAction(data)
		if err != nil {
			c.log.Warn("socket message dropped", "err", err, "bytes", len(data))
			continue
		}
		if action.Keyed() {
			c.log.Warn("socket message dropped", "action", action.String(), "err", schema.ErrKeyedAction)
			continue
		}
		s.hub.apply(c, action)
	}
}

// writePump is the only writer on the connection.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case action, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := json.Marshal(action)
			if err != nil {
				c.log.Warn("socket encode failed", "action", action.String(), "err", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Debug("socket write failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

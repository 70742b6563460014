// Package transport adapts Phalanx's match/queue/auth components to
// gorilla/websocket: connection upgrade, per-connection read/write pumps,
// and routing of the tagged-union wire protocol.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"phalanx/auth"
	"phalanx/config"
	"phalanx/queue"
	"phalanx/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub owns the set of live connections and wires them to the queue and
// registry. One Hub serves every connection for a single configured game
// mode's queue.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client

	Queue    *queue.Queue
	Registry *registry.Registry

	cfg *config.Config
	val auth.TokenValidator
	log *slog.Logger
}

// NewHub wires a Hub to its queue, registry, config, and optional token
// validator (nil when auth is disabled).
func NewHub(cfg *config.Config, q *queue.Queue, reg *registry.Registry, validator auth.TokenValidator, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Queue:      q,
		Registry:   reg,
		cfg:        cfg,
		val:        validator,
		log:        log.With("tag", "transport"),
	}
	upgrader.CheckOrigin = h.checkOrigin
	return h
}

func (h *Hub) validator() auth.TokenValidator { return h.val }

// checkOrigin reports whether r's Origin header is allowed, per the
// configured CORS origin. "*" allows all origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.CORS.Origin == "*" || h.cfg.CORS.Origin == "" {
		return true
	}
	return r.Header.Get("Origin") == h.cfg.CORS.Origin
}

// Run is the hub's registration loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub shutting down")
			return

		case c := <-h.Register:
			h.Clients[c] = true
			h.log.Info("client connected", "connId", c.ConnectionID, "total", len(h.Clients))

		case c := <-h.Unregister:
			if _, ok := h.Clients[c]; !ok {
				continue
			}
			delete(h.Clients, c)
			close(c.outbox)
			h.log.Info("client disconnected", "connId", c.ConnectionID, "total", len(h.Clients))

			if c.PlayerID == "" {
				continue
			}
			if h.Queue != nil {
				h.Queue.MarkDisconnected(c.PlayerID)
			}
			if matchID, ok := h.Registry.MatchForPlayer(c.PlayerID); ok {
				if m, ok := h.Registry.Get(matchID); ok {
					m.NotifyDisconnected(c.PlayerID)
				}
			}
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// the resulting client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	h.Register <- c

	go c.WritePump()
	go c.ReadPump()
	go h.enforceEstablishmentTimeout(c)
}

// enforceEstablishmentTimeout closes a connection that never authenticates
// or joins the queue within ConnectionTimeoutMs, freeing the slot it would
// otherwise hold open indefinitely. Closing an already-closed connection is
// a harmless no-op, so this never needs to know the connection exited early.
func (h *Hub) enforceEstablishmentTimeout(c *Client) {
	if h.cfg.ConnectionTimeoutMs <= 0 {
		return
	}
	<-time.After(time.Duration(h.cfg.ConnectionTimeoutMs) * time.Millisecond)
	if !c.established.Load() {
		h.log.Info("closing connection that never established", "connId", c.ConnectionID)
		c.Conn.Close()
	}
}

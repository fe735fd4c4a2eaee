// Package realtime pushes domain events to authenticated websocket clients.
package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/events"
	"fitcoach/internal/observability"
)

var ErrHubClosed = errors.New("realtime hub closed")

const maxInboundMessage = 4096

// Hub fans every event out to every open connection in broadcast order.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	sendBuffer   int
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	log          zerolog.Logger
}

func NewHub(cfg config.RealtimeConfig, allowedOrigins []string, log zerolog.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	h := &Hub{
		clients:      make(map[*client]struct{}),
		sendBuffer:   cfg.SendBuffer,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		log:          log.With().Str("component", "realtime_hub").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Broadcast encodes evt once and queues it on every connection. A connection
// whose queue is full is dropped.
func (h *Hub) Broadcast(evt events.Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(evt.Name)).Msg("encode event failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn().Str("user_id", c.userID).Msg("dropping slow realtime consumer")
			observability.RecordSlowConsumerDropped()
			h.removeLocked(c)
		}
	}
}

// ServeWS upgrades the request and blocks until the connection ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		hub:    h,
		ws:     ws,
		userID: userID,
		send:   make(chan []byte, h.sendBuffer),
		done:   make(chan struct{}),
	}
	if err := h.add(c); err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeTimeout))
		_ = ws.Close()
		return err
	}

	h.log.Debug().Str("user_id", userID).Msg("realtime connection opened")
	go c.writePump()
	c.readPump()
	return nil
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	observability.ConnectionOpened()
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)
	observability.ConnectionClosed()
}

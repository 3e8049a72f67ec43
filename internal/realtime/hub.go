// Package realtime pushes events to connected browsers over WebSocket.
// Connections are keyed by the authenticated user so notifications and
// messages reach only their recipients.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/depotline/depot/internal/observability"
	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Event is the payload pushed to a client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// client wraps a WebSocket connection with a mutex for thread-safe writes.
type client struct {
	userID int64
	conn   *ws.Conn
	mu     sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(ws.TextMessage, data)
}

// Hub maintains connected clients per user.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int64]map[*client]struct{}
	total    int
	logger   *slog.Logger
	metrics  *observability.Metrics
	upgrader ws.Upgrader
}

// NewHub creates a new Hub. allowedOrigins empty accepts any origin.
func NewHub(logger *slog.Logger, metrics *observability.Metrics, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{clients: make(map[int64]map[*client]struct{}), logger: logger, metrics: metrics}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
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

func (h *Hub) register(c *client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	h.total++
	total := h.total
	h.mu.Unlock()
	h.metrics.WSClients(total)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if ok {
		if _, present := conns[c]; present {
			delete(conns, c)
			h.total--
		}
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	total := h.total
	h.mu.Unlock()
	h.metrics.WSClients(total)
	_ = c.conn.Close()
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Online reports whether userID has at least one open connection.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendToUser pushes evt to every connection of userID and reports how many
// connections received it. Connections failing the write are dropped.
func (h *Hub) SendToUser(userID int64, evt Event) int {
	return h.SendToUsers([]int64{userID}, evt)
}

// SendToUsers pushes evt to every connection of the given users.
func (h *Hub) SendToUsers(userIDs []int64, evt Event) int {
	if h == nil || len(userIDs) == 0 {
		return 0
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("ws marshal event", slog.String("type", evt.Type), slog.Any("error", err))
		return 0
	}
	h.mu.RLock()
	var targets []*client
	for _, id := range userIDs {
		for c := range h.clients[id] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.logger.Debug("ws write failed", slog.Int64("user_id", c.userID), slog.Any("error", err))
			h.unregister(c)
			continue
		}
		sent++
	}
	return sent
}

// ServeHTTP upgrades an authenticated request and keeps the connection alive
// with pings until the client goes away. Incoming frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil || principal.UserID <= 0 {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade", slog.Any("error", err))
		return
	}

	c := &client{userID: principal.UserID, conn: conn}
	h.register(c)
	h.logger.Debug("ws client connected", slog.Int64("user_id", c.userID), slog.Int("total", h.Count()))

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.unregister(c)
	h.logger.Debug("ws client disconnected", slog.Int64("user_id", c.userID))
}

// Package live serves the latest snapshot over HTTP and streams every new
// snapshot to websocket clients.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ponytojas/dht-logger/internal/codec"
	"github.com/ponytojas/dht-logger/internal/dispatch"
)

const writeWait = 5 * time.Second

var _ dispatch.Sender = (*Hub)(nil)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub keeps the latest human-readable snapshot and the connected clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	latest  []byte
	logger  *slog.Logger
}

// NewHub returns a hub with no clients.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Name returns the live channel name.
func (h *Hub) Name() string {
	return "live"
}

// Format returns codec.Human.
func (h *Hub) Format() codec.Format {
	return codec.Human
}

// Send stores payload as the latest snapshot and broadcasts it. Clients that
// fail to receive it are dropped; the send itself never fails.
func (h *Hub) Send(_ context.Context, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = payload
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("WebSocket write error", slog.String("remote", conn.RemoteAddr().String()), slog.Any("error", err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
	return nil
}

// Latest returns the most recent snapshot, or nil before the first one.
func (h *Hub) Latest() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	if h.latest != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, h.latest)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Client connected", slog.Int("clients", n))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	n = len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Client disconnected", slog.Int("clients", n))
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	return nil
}

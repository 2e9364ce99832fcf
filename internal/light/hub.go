package light

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightshow/lightshow/internal/animation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The control API authenticates the upgrade request itself.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub is a light client that broadcasts frames to connected browsers. Slow
// viewers skip frames instead of slowing the render loop.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	last    []byte
	logger  *slog.Logger
}

// NewHub creates an empty preview hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		logger:  logger.With("component", "preview"),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := make(chan []byte, 4)
	h.mu.Lock()
	h.clients[conn] = out
	if h.last != nil {
		out <- h.last
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(out)
	}()

	go func() {
		for msg := range out {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		}
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Render(_ context.Context, f animation.Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for _, out := range h.clients {
		select {
		case out <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.Close()
	}
	return nil
}

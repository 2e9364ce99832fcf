package light

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightshow/lightshow/internal/animation"
)

// WebSocket sends every frame as a JSON text message to a remote light
// server. The connection is re-established lazily after a failure.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket targets url, for example ws://127.0.0.1:7890/frames.
func NewWebSocket(url string) *WebSocket {
	return &WebSocket{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 2 * time.Second},
	}
}

func (w *WebSocket) Render(ctx context.Context, f animation.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			return fmt.Errorf("dial light server: %w", err)
		}
		w.conn = conn
	}

	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteJSON(f); err != nil {
		w.conn.Close()
		w.conn = nil
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}

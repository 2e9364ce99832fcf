package light

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightshow/lightshow/internal/animation"
)

type recordClient struct {
	frames int
	err    error
	closed bool
}

func (r *recordClient) Render(context.Context, animation.Frame) error {
	r.frames++
	return r.err
}

func (r *recordClient) Close() error {
	r.closed = true
	return nil
}

func TestFanoutRendersAll(t *testing.T) {
	boom := errors.New("boom")
	a := &recordClient{err: boom}
	b := &recordClient{}

	err := Fanout{a, b}.Render(context.Background(), animation.NewFrame(3))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if a.frames != 1 || b.frames != 1 {
		t.Errorf("frames = %d, %d; want 1, 1", a.frames, b.frames)
	}

	if err := (Fanout{a, b}).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("not all clients closed")
	}
}

func TestTerminalDownsamples(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, 10)

	f := animation.NewFrame(500)
	f.Fill(animation.White)
	if err := term.Render(context.Background(), f); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "\r") {
		t.Errorf("expected carriage return prefix, got %q", out)
	}
	if n := strings.Count(out, "█"); n != 10 {
		t.Errorf("cells = %d, want 10", n)
	}

	buf.Reset()
	if err := term.Render(context.Background(), animation.NewFrame(4)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if n := strings.Count(buf.String(), "█"); n != 4 {
		t.Errorf("short frame cells = %d, want 4", n)
	}
}

func TestWebSocketClient(t *testing.T) {
	got := make(chan animation.Frame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var f animation.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		got <- f
		conn.ReadMessage()
	}))
	defer srv.Close()

	ws := NewWebSocket("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer ws.Close()

	f := animation.NewFrame(3)
	f.Set(1, animation.RGB(255, 0, 0))
	if err := ws.Render(context.Background(), f); err != nil {
		t.Fatalf("render: %v", err)
	}

	select {
	case rf := <-got:
		if rf.Len() != 3 || rf.Pixels[1] != animation.RGB(255, 0, 0) {
			t.Errorf("unexpected frame %+v", rf)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}
}

func TestWebSocketDialFailure(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/frames")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Render(ctx, animation.NewFrame(1)); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f := animation.NewFrame(2)
	f.Fill(animation.RGB(0, 0, 255))
	if err := hub.Render(context.Background(), f); err != nil {
		t.Fatalf("render: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rf animation.Frame
	if err := conn.ReadJSON(&rf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if rf.Len() != 2 || rf.Pixels[0] != animation.RGB(0, 0, 255) {
		t.Errorf("unexpected frame %+v", rf)
	}
}

package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testEvent struct {
	Type string `json:"type"`
	N    int    `json:"n"`
}

func startHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	h := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) testEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev testEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode %q: %v", msg, err)
	}
	return ev
}

func TestWelcomeBeforeBroadcast(t *testing.T) {
	h, url := startHub(t, Options{
		Welcome: func() []any { return []any{testEvent{Type: "status", N: 1}} },
	})

	conn := dial(t, url)
	waitClients(t, h, 1)
	h.BroadcastJSON(testEvent{Type: "signal", N: 2})

	if ev := readEvent(t, conn); ev.Type != "status" || ev.N != 1 {
		t.Fatalf("first event = %+v, want welcome status", ev)
	}
	if ev := readEvent(t, conn); ev.Type != "signal" || ev.N != 2 {
		t.Fatalf("second event = %+v, want broadcast", ev)
	}
}

func TestBroadcastFanOut(t *testing.T) {
	h, url := startHub(t, Options{})

	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	for i := 0; i < 5; i++ {
		h.BroadcastJSON(testEvent{Type: "blink", N: i})
	}
	for _, conn := range []*websocket.Conn{a, b} {
		for i := 0; i < 5; i++ {
			if ev := readEvent(t, conn); ev.N != i {
				t.Fatalf("event %d = %+v", i, ev)
			}
		}
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h, url := startHub(t, Options{})

	conn := dial(t, url)
	waitClients(t, h, 1)
	_ = conn.Close()
	waitClients(t, h, 0)
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := NewHub(Options{})
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.BroadcastJSON(testEvent{N: i})
	}
	if got := h.Dropped(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
}

package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

func TestPumpWritesQueuedFrames(t *testing.T) {
	received := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			_, b, err := c.Read(context.Background())
			if err != nil {
				return
			}
			received <- string(b)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	p := NewPump(conn, nil)
	for i := 0; i < 3; i++ {
		if err := p.Send(wire.KindPing, wire.PingPayload{Timestamp: time.Now()}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case f := <-received:
			if !strings.Contains(f, `"kind":"ping"`) {
				t.Fatalf("frame = %s", f)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}

	p.Stop()
	if err := p.Send(wire.KindPing, nil); !errors.Is(err, wire.ErrClosed) {
		t.Fatalf("send after stop = %v; want closed", err)
	}
}

func TestPumpReportsWriteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.CloseNow()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	failed := make(chan error, 1)
	p := NewPump(conn, func(err error) { failed <- err })

	deadline := time.After(3 * time.Second)
	for {
		select {
		case err := <-failed:
			var te *wire.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("failure = %v; want transport error", err)
			}
			return
		case <-deadline:
			t.Fatalf("pump never reported the dead socket")
		default:
			_ = p.Send(wire.KindPing, wire.PingPayload{Timestamp: time.Now()})
			time.Sleep(10 * time.Millisecond)
		}
	}
}

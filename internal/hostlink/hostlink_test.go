package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/mainthread"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

type testServer struct {
	srv     *httptest.Server
	healthy atomic.Bool
	accepts atomic.Int32
	conns   chan *websocket.Conn
	frames  chan wire.Envelope
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:  make(chan *websocket.Conn, 4),
		frames: make(chan wire.Envelope, 64),
	}
	ts.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if !ts.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wire.StatusPayload{Status: "ok", Version: "test", Timestamp: time.Now()})
	})
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ts.accepts.Add(1)
		ts.conns <- c
		for {
			_, data, err := c.Read(context.Background())
			if err != nil {
				return
			}
			if env, err := wire.Decode(data); err == nil {
				ts.frames <- env
			}
		}
	})
	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/bridge"
}

// waitKind drains frames until one of the wanted kind arrives.
func (ts *testServer) waitKind(t *testing.T, kind string) wire.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ts.frames:
			if env.Kind == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s frame within deadline", kind)
		}
	}
}

func (ts *testServer) send(t *testing.T, c *websocket.Conn, kind string, payload any) {
	t.Helper()
	b, err := wire.Encode(kind, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Write(context.Background(), websocket.MessageText, b); err != nil {
		t.Fatal(err)
	}
}

type fakeHost struct {
	executed chan string
}

func newFakeHost() *fakeHost {
	return &fakeHost{executed: make(chan string, 16)}
}

func (h *fakeHost) ExecuteCommand(code string) wire.CommandResult {
	h.executed <- code
	return wire.CommandResult{Output: "ran " + code}
}

func (h *fakeHost) State() wire.EditorState {
	return wire.EditorState{ActiveScene: "TestScene", ObjectCount: 1}
}

func (h *fakeHost) ObjectDetails(name string) wire.ObjectDetails {
	return wire.ObjectDetails{Name: name, Path: "/" + name, Active: true}
}

func (h *fakeHost) Screenshot(req wire.TakeScreenshotPayload) wire.Screenshot {
	return wire.Screenshot{Width: req.Width, Height: req.Height, Data: "cGM="}
}

func (h *fakeHost) ManipulateScene(req wire.ManipulateScenePayload) wire.SceneManipulationResult {
	return wire.SceneManipulationResult{Action: req.Action, Name: req.Name, Path: "/" + req.Name}
}

func (h *fakeHost) ManageAssets(req wire.ManageAssetsPayload) wire.AssetManagementResult {
	return wire.AssetManagementResult{Action: req.Action}
}

func newTestLink(t *testing.T, url string, host Host) *Link {
	t.Helper()
	cfg := config.HostConfig{
		ServerURL:         url,
		GateTimeout:       time.Second,
		DialTimeout:       time.Second,
		ReconnectInterval: 50 * time.Millisecond,
		HeartbeatInterval: 10 * time.Second,
		LivenessTimeout:   20 * time.Second,
	}
	disp := mainthread.NewDispatcher(32)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go disp.Run(ctx)
	l := New(cfg, host, disp)
	t.Cleanup(l.Disconnect)
	return l
}

func TestConnectSendsHelloOnce(t *testing.T) {
	ts := newTestServer(t)
	l := newTestLink(t, ts.wsURL(), newFakeHost())

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	env := ts.waitKind(t, wire.KindHello)
	var hello wire.HelloPayload
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		t.Fatalf("hello payload: %v", err)
	}
	if hello.Timestamp.IsZero() || hello.Version == "" {
		t.Fatalf("hello = %+v", hello)
	}
	if !l.IsUsable() || l.State() != StateOpen {
		t.Fatalf("state = %s usable = %v", l.State(), l.IsUsable())
	}

	// A second call must not open a second socket.
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("repeat connect: %v", err)
	}
	if n := ts.accepts.Load(); n != 1 {
		t.Fatalf("accepts = %d, want 1", n)
	}
}

func TestGateFailureBlocksDial(t *testing.T) {
	ts := newTestServer(t)
	ts.healthy.Store(false)
	l := newTestLink(t, ts.wsURL(), newFakeHost())

	err := l.Connect(context.Background())
	var ge *wire.GateError
	if !errors.As(err, &ge) || ge.Reason != wire.GateUnhealthy {
		t.Fatalf("err = %v", err)
	}
	if n := ts.accepts.Load(); n != 0 {
		t.Fatalf("unhealthy gate still dialed: accepts = %d", n)
	}
	if l.IsUsable() || l.State() != StateFailed {
		t.Fatalf("state = %s", l.State())
	}
}

func TestGateUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NewServeMux())
	url := "ws" + strings.TrimPrefix(dead.URL, "http") + "/bridge"
	dead.Close()

	l := newTestLink(t, url, newFakeHost())
	err := l.Connect(context.Background())
	var ge *wire.GateError
	if !errors.As(err, &ge) || ge.Reason != wire.GateUnreachable {
		t.Fatalf("err = %v", err)
	}
}

func TestCommandRoundTripInOrder(t *testing.T) {
	ts := newTestServer(t)
	host := newFakeHost()
	l := newTestLink(t, ts.wsURL(), host)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c := <-ts.conns
	ts.waitKind(t, wire.KindHello)

	ts.send(t, c, wire.KindExecuteCommand, wire.ExecuteCommandPayload{Code: "first"})
	ts.send(t, c, wire.KindExecuteCommand, wire.ExecuteCommandPayload{Code: "second"})

	for _, want := range []string{"ran first", "ran second"} {
		env := ts.waitKind(t, wire.KindCommandResult)
		var res wire.CommandResult
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			t.Fatal(err)
		}
		if res.Output != want {
			t.Fatalf("output = %q, want %q", res.Output, want)
		}
	}

	ts.send(t, c, wire.KindGetState, struct{}{})
	env := ts.waitKind(t, wire.KindState)
	var st wire.EditorState
	if err := json.Unmarshal(env.Payload, &st); err != nil {
		t.Fatal(err)
	}
	if st.ActiveScene != "TestScene" {
		t.Fatalf("state = %+v", st)
	}
}

func TestBadPayloadIsDroppedNotFatal(t *testing.T) {
	ts := newTestServer(t)
	l := newTestLink(t, ts.wsURL(), newFakeHost())
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c := <-ts.conns
	ts.waitKind(t, wire.KindHello)

	// A known kind with a busted payload must be dropped silently.
	b, _ := json.Marshal(map[string]any{"kind": wire.KindExecuteCommand, "payload": "not an object"})
	if err := c.Write(context.Background(), websocket.MessageText, b); err != nil {
		t.Fatal(err)
	}
	ts.send(t, c, wire.KindExecuteCommand, wire.ExecuteCommandPayload{Code: "after"})

	env := ts.waitKind(t, wire.KindCommandResult)
	var res wire.CommandResult
	_ = json.Unmarshal(env.Payload, &res)
	if res.Output != "ran after" {
		t.Fatalf("first reply = %q; bad payload produced a reply", res.Output)
	}
	if !l.IsUsable() {
		t.Fatal("bad payload tore down the connection")
	}
}

func TestLivenessTimeoutThenReconnect(t *testing.T) {
	ts := newTestServer(t)
	host := newFakeHost()

	cfg := config.HostConfig{
		ServerURL:         ts.wsURL(),
		GateTimeout:       time.Second,
		DialTimeout:       time.Second,
		ReconnectInterval: 50 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		LivenessTimeout:   250 * time.Millisecond,
	}
	disp := mainthread.NewDispatcher(32)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go disp.Run(ctx)
	l := New(cfg, host, disp)
	t.Cleanup(l.Disconnect)

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Answer pings on whatever connection is newest; the link must stay
	// open well past the liveness window while pongs flow.
	var target atomic.Pointer[websocket.Conn]
	target.Store(<-ts.conns)
	go func() {
		for nc := range ts.conns {
			target.Store(nc)
		}
	}()
	var stopPongs atomic.Bool
	go func() {
		for env := range ts.frames {
			if env.Kind == wire.KindPing && !stopPongs.Load() {
				b, _ := wire.Encode(wire.KindPong, wire.PongPayload{Timestamp: time.Now()})
				_ = target.Load().Write(context.Background(), websocket.MessageText, b)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		l.Tick(time.Now())
		time.Sleep(25 * time.Millisecond)
	}
	if !l.IsUsable() {
		t.Fatal("link died while pongs were flowing")
	}

	// Starve it and the next ticks must cut the connection.
	stopPongs.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for l.IsUsable() && time.Now().Before(deadline) {
		l.Tick(time.Now())
		time.Sleep(25 * time.Millisecond)
	}
	if l.IsUsable() {
		t.Fatal("link survived pong starvation")
	}

	// Keep ticking; the reconnect path brings up a second session.
	stopPongs.Store(false)
	deadline = time.Now().Add(2 * time.Second)
	for !l.IsUsable() && time.Now().Before(deadline) {
		l.Tick(time.Now())
		time.Sleep(25 * time.Millisecond)
	}
	if !l.IsUsable() {
		t.Fatal("no reconnect after liveness drop")
	}
	if n := ts.accepts.Load(); n < 2 {
		t.Fatalf("accepts = %d, want at least 2", n)
	}
}

func TestDisconnectIsFinal(t *testing.T) {
	ts := newTestServer(t)
	l := newTestLink(t, ts.wsURL(), newFakeHost())
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	l.Disconnect()

	if l.IsUsable() {
		t.Fatal("usable after disconnect")
	}
	if err := l.SendLog(wire.LogPayload{Message: "x"}); err != wire.ErrNotConnected && err != wire.ErrClosed {
		t.Fatalf("SendLog = %v", err)
	}
	if err := l.Connect(context.Background()); err != wire.ErrClosed {
		t.Fatalf("Connect after close = %v", err)
	}
	// Ticks must not resurrect the link.
	l.Tick(time.Now().Add(time.Minute))
	time.Sleep(50 * time.Millisecond)
	if n := ts.accepts.Load(); n != 1 {
		t.Fatalf("accepts = %d after close", n)
	}
}

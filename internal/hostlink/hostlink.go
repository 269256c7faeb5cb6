// Package hostlink connects the host application to the tool server. It
// owns the outbound side of the bridge: the pre-flight health gate, the
// websocket dial and hello, heartbeats, liveness, reconnects, and the
// dispatch of inbound commands onto the privileged work queue.
package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	gops "github.com/shirou/gopsutil/v4/host"

	"github.com/setohima/UnityMCP-VRC/internal/bridge"
	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/mainthread"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// maxFrameBytes mirrors the server's read limit so oversized frames fail
// on whichever side sees them first.
const maxFrameBytes = 10 << 20

const jobQueueSize = 256

// Host is the command surface a connected application exposes to the
// server. Domain failures travel inside the result payloads; only
// transport problems are errors here.
type Host interface {
	ExecuteCommand(code string) wire.CommandResult
	State() wire.EditorState
	ObjectDetails(name string) wire.ObjectDetails
	Screenshot(req wire.TakeScreenshotPayload) wire.Screenshot
	ManipulateScene(req wire.ManipulateScenePayload) wire.SceneManipulationResult
	ManageAssets(req wire.ManageAssetsPayload) wire.AssetManagementResult
}

// LinkState names the supervisor states. Transitions only move forward
// within one attempt; any failure lands in StateFailed and the next tick
// schedules a fresh attempt from there.
type LinkState string

const (
	StateIdle           LinkState = "idle"
	StateHealthChecking LinkState = "health_checking"
	StateConnecting     LinkState = "connecting"
	StateHandshaking    LinkState = "handshaking"
	StateOpen           LinkState = "open"
	StateClosing        LinkState = "closing"
	StateFailed         LinkState = "failed"
)

// Link supervises the single connection between the host and the server.
// Tick drives everything time-based so the host's main loop stays in
// control of cadence.
type Link struct {
	cfg  config.HostConfig
	host Host
	disp *mainthread.Dispatcher

	mu       sync.Mutex
	state    LinkState
	sess     *session
	lastPong time.Time
	lastPing time.Time
	lastTry  time.Time
	closed   bool
}

func New(cfg config.HostConfig, host Host, disp *mainthread.Dispatcher) *Link {
	if cfg.GateTimeout <= 0 {
		cfg.GateTimeout = 2 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = 20 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Link{cfg: cfg, host: host, disp: disp, state: StateIdle}
}

// Connect runs one full attempt: health gate, dial, hello. It returns nil
// without touching the network when an attempt is already in flight or
// the link is open, so callers may invoke it freely.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return wire.ErrClosed
	}
	switch l.state {
	case StateHealthChecking, StateConnecting, StateHandshaking, StateOpen:
		l.mu.Unlock()
		return nil
	}
	l.state = StateHealthChecking
	l.lastTry = time.Now()
	l.mu.Unlock()
	SetLinkState(string(StateHealthChecking))

	statusURL, err := statusURLFor(l.cfg)
	if err != nil {
		return l.failConnect(err)
	}
	if err := probeGate(ctx, statusURL, l.cfg.GateTimeout); err != nil {
		var ge *wire.GateError
		if errors.As(err, &ge) {
			RecordGateFailure(string(ge.Reason))
		}
		RecordConnectAttempt(false)
		return l.failConnect(err)
	}

	l.setState(StateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, l.cfg.ServerURL, nil)
	cancel()
	if err != nil {
		RecordConnectAttempt(false)
		return l.failConnect(&wire.TransportError{Op: "dial", Err: err})
	}
	conn.SetReadLimit(maxFrameBytes)

	l.setState(StateHandshaking)
	sess := l.newSession(conn)
	hello := wire.HelloPayload{
		Version:   GetVersionInfo().Version,
		Platform:  platformString(),
		Timestamp: time.Now().UTC(),
	}
	if err := sess.pump.Send(wire.KindHello, hello); err != nil {
		sess.shutdown(websocket.StatusInternalError, "hello failed")
		RecordConnectAttempt(false)
		return l.failConnect(err)
	}

	l.mu.Lock()
	if l.closed {
		// Disconnect raced the dial; drop the fresh socket.
		l.mu.Unlock()
		sess.shutdown(websocket.StatusNormalClosure, "closing")
		return wire.ErrClosed
	}
	l.sess = sess
	l.state = StateOpen
	now := time.Now()
	l.lastPong = now
	l.lastPing = now
	l.mu.Unlock()

	go sess.readLoop()
	go sess.replyLoop()

	SetLinkState(string(StateOpen))
	SetConnected(true)
	SetLastError("")
	RecordConnectAttempt(true)
	logx.Log.Info().Str("server", l.cfg.ServerURL).Msg("connected to server")
	return nil
}

// Tick advances the link: while open it sends heartbeats and enforces
// liveness, otherwise it schedules reconnect attempts. The host calls it
// on a fixed cadence.
func (l *Link) Tick(now time.Time) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	state := l.state
	sess := l.sess
	sincePong := now.Sub(l.lastPong)
	sincePing := now.Sub(l.lastPing)
	sinceTry := now.Sub(l.lastTry)
	l.mu.Unlock()

	switch state {
	case StateOpen:
		if sess == nil {
			return
		}
		if sincePong >= l.cfg.LivenessTimeout {
			RecordLivenessTimeout()
			logx.Log.Error().Dur("since_pong", sincePong).Msg("server stopped answering pings; dropping connection")
			sess.fail(&wire.TransportError{Op: "heartbeat", Err: wire.ErrTimeout})
			return
		}
		if sincePing >= l.cfg.HeartbeatInterval {
			l.mu.Lock()
			l.lastPing = now
			l.mu.Unlock()
			if err := sess.pump.Send(wire.KindPing, wire.PingPayload{Timestamp: now.UTC()}); err == nil {
				RecordPing()
			}
		}
	case StateIdle, StateFailed:
		if sinceTry >= l.cfg.ReconnectInterval {
			go func() { _ = l.Connect(context.Background()) }()
		}
	}
}

// Run connects and then ticks until ctx ends, closing the link on the
// way out.
func (l *Link) Run(ctx context.Context) error {
	_ = l.Connect(ctx)
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Disconnect()
			return ctx.Err()
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// Disconnect tears the link down for good. Later Connect and SendLog
// calls fail with ErrClosed.
func (l *Link) Disconnect() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	sess := l.sess
	l.sess = nil
	l.state = StateClosing
	l.mu.Unlock()
	SetLinkState(string(StateClosing))
	if sess != nil {
		sess.shutdown(websocket.StatusNormalClosure, "host shutting down")
	}
	l.mu.Lock()
	l.state = StateIdle
	l.mu.Unlock()
	SetConnected(false)
	SetLinkState(string(StateIdle))
	logx.Log.Info().Msg("host link closed")
}

// IsUsable reports whether commands can flow right now.
func (l *Link) IsUsable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.state == StateOpen && l.sess != nil
}

// State returns the supervisor state for status listeners and tests.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SendLog forwards one log record, fire and forget. Not being connected
// is an error the relay treats as droppable, never as fatal.
func (l *Link) SendLog(p wire.LogPayload) error {
	l.mu.Lock()
	sess := l.sess
	usable := !l.closed && l.state == StateOpen && sess != nil
	l.mu.Unlock()
	if !usable {
		return wire.ErrNotConnected
	}
	return sess.pump.Send(wire.KindLog, p)
}

func (l *Link) setState(s LinkState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	SetLinkState(string(s))
}

func (l *Link) failConnect(err error) error {
	l.mu.Lock()
	l.state = StateFailed
	l.mu.Unlock()
	SetLinkState(string(StateFailed))
	SetLastError(err.Error())
	logx.Log.Warn().Err(err).Msg("connect failed")
	return err
}

func (l *Link) notePong() {
	l.mu.Lock()
	l.lastPong = time.Now()
	l.mu.Unlock()
	SetLastPong(time.Now())
}

// sessionDown records an involuntary teardown and arms the reconnect
// timer.
func (l *Link) sessionDown(s *session, err error) {
	l.mu.Lock()
	if l.sess != s {
		l.mu.Unlock()
		return
	}
	l.sess = nil
	l.state = StateFailed
	l.lastTry = time.Now()
	l.mu.Unlock()

	SetConnected(false)
	SetLinkState(string(StateFailed))
	SetLastError(err.Error())
	RecordDisconnect()

	var ce websocket.CloseError
	if errors.As(err, &ce) {
		lvl := logx.Log.Info()
		if ce.Code != websocket.StatusNormalClosure {
			lvl = logx.Log.Error()
		}
		lvl.Str("reason", ce.Reason).Msg("server connection closed")
	} else {
		logx.Log.Error().Err(err).Msg("server connection lost")
	}
}

func platformString() string {
	info, err := gops.Info()
	if err != nil || info.Platform == "" {
		return runtime.GOOS
	}
	return strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
}

// session is one live websocket. It dies at the first transport error and
// is never reused.
type session struct {
	link   *Link
	conn   *websocket.Conn
	pump   *bridge.Pump
	router *bridge.Router
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan replyJob
	once   sync.Once
	done   chan struct{}
}

// replyJob carries one pending command reply. A single consumer sends
// replies in submission order, which is what keeps the server's FIFO
// correlation sound.
type replyJob struct {
	kind    string
	pending *mainthread.Pending
	err     error
}

type errorReply struct {
	Error string `json:"error"`
}

func (l *Link) newSession(conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		link:   l,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan replyJob, jobQueueSize),
		done:   make(chan struct{}),
	}
	s.pump = bridge.NewPump(conn, func(err error) { s.fail(err) })

	r := bridge.NewRouter()
	r.Handle(wire.KindWelcome, s.onWelcome)
	r.Handle(wire.KindPong, s.onPong)
	r.Handle(wire.KindExecuteCommand, s.commandHandler(wire.KindCommandResult, func(raw json.RawMessage) (mainthread.Work, error) {
		var p wire.ExecuteCommandPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return func() (any, error) { return l.host.ExecuteCommand(p.Code), nil }, nil
	}))
	r.Handle(wire.KindGetState, s.commandHandler(wire.KindState, func(json.RawMessage) (mainthread.Work, error) {
		return func() (any, error) { return l.host.State(), nil }, nil
	}))
	r.Handle(wire.KindGetObjectDetails, s.commandHandler(wire.KindObjectDetails, func(raw json.RawMessage) (mainthread.Work, error) {
		var p wire.GetObjectDetailsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return func() (any, error) { return l.host.ObjectDetails(p.ObjectName), nil }, nil
	}))
	r.Handle(wire.KindTakeScreenshot, s.commandHandler(wire.KindScreenshot, func(raw json.RawMessage) (mainthread.Work, error) {
		var p wire.TakeScreenshotPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return func() (any, error) { return l.host.Screenshot(p), nil }, nil
	}))
	r.Handle(wire.KindManipulateScene, s.commandHandler(wire.KindSceneManipulationResult, func(raw json.RawMessage) (mainthread.Work, error) {
		var p wire.ManipulateScenePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return func() (any, error) { return l.host.ManipulateScene(p), nil }, nil
	}))
	r.Handle(wire.KindManageAssets, s.commandHandler(wire.KindAssetManagementResult, func(raw json.RawMessage) (mainthread.Work, error) {
		var p wire.ManageAssetsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return func() (any, error) { return l.host.ManageAssets(p), nil }, nil
	}))
	s.router = r
	return s
}

// commandHandler decodes one request kind, puts the work on the
// privileged queue and schedules its reply. It returns immediately so the
// receive loop keeps draining frames while the work runs.
func (s *session) commandHandler(replyKind string, decode func(json.RawMessage) (mainthread.Work, error)) bridge.HandlerFunc {
	return func(raw json.RawMessage) {
		work, err := decode(raw)
		if err != nil {
			logx.Log.Warn().Str("reply", replyKind).Err(err).Msg("dropping request with bad payload")
			return
		}
		RecordCommand(replyKind)
		job := replyJob{kind: replyKind}
		if pending, err := s.link.disp.Submit(work); err != nil {
			job.err = err
		} else {
			job.pending = pending
		}
		select {
		case s.jobs <- job:
		default:
			logx.Log.Error().Str("reply", replyKind).Msg("reply queue full; dropping request")
		}
	}
}

func (s *session) onWelcome(raw json.RawMessage) {
	var p wire.WelcomePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logx.Log.Warn().Err(err).Msg("bad welcome payload")
		return
	}
	logx.Log.Info().Str("server_version", p.Version).Str("message", p.Message).Msg("server welcome")
}

func (s *session) onPong(raw json.RawMessage) {
	var p wire.PongPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logx.Log.Warn().Err(err).Msg("bad pong payload")
		return
	}
	s.link.notePong()
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.fail(&wire.TransportError{Op: "read", Err: err})
			return
		}
		s.router.Dispatch(data)
	}
}

// replyLoop sends command replies one at a time, in the order their
// requests arrived.
func (s *session) replyLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			start := time.Now()
			var payload any
			if job.err != nil {
				payload = errorReply{Error: job.err.Error()}
			} else {
				v, err := job.pending.Await(s.ctx)
				if err != nil {
					if s.ctx.Err() != nil {
						return
					}
					payload = errorReply{Error: err.Error()}
				} else {
					payload = v
				}
			}
			if err := s.pump.Send(job.kind, payload); err != nil {
				return
			}
			ObserveCommandDuration(time.Since(start))
		}
	}
}

// fail tears the session down after a transport error, exactly once.
func (s *session) fail(err error) {
	s.once.Do(func() {
		s.cancel()
		s.pump.Stop()
		_ = s.conn.CloseNow()
		close(s.done)
		s.link.sessionDown(s, err)
	})
}

// shutdown closes deliberately, with a proper close frame and without
// reporting a failure.
func (s *session) shutdown(code websocket.StatusCode, reason string) {
	s.once.Do(func() {
		s.cancel()
		s.pump.Stop()
		_ = s.conn.Close(code, reason)
		close(s.done)
	})
}

// Package toolserver is the accepting side of the bridge. It owns the
// editor websocket, the reply correlator and the inbound log sink, and
// exposes the command API that concurrent callers use.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/setohima/UnityMCP-VRC/internal/bridge"
	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/logbuf"
	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/metrics"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// handshakeTimeout bounds how long a fresh socket may sit silent before
// its hello.
const handshakeTimeout = 10 * time.Second

// Server accepts one editor connection at a time and correlates command
// replies back to callers. Callers never see the socket, only the typed
// operations in commands.go.
type Server struct {
	cfg     config.ServerConfig
	version string
	logs    logbuf.Store

	mu          sync.Mutex
	sess        *session
	connectedAt time.Time
	editor      wire.HelloPayload
}

func New(cfg config.ServerConfig, version string, logs logbuf.Store) *Server {
	if logs == nil {
		logs = logbuf.NewMemStore()
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 30 * time.Second
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 60 * time.Second
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 10 << 20
	}
	return &Server{cfg: cfg, version: version, logs: logs}
}

// Logs exposes the store backing GetLogs, for the REST surface.
func (s *Server) Logs() logbuf.Store { return s.logs }

// Connected reports whether an editor is on the bridge right now.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess != nil
}

// Snapshot is the status view of the bridge.
type Snapshot struct {
	Connected     bool      `json:"connected"`
	ConnectedAt   time.Time `json:"connected_at,omitzero"`
	EditorVersion string    `json:"editor_version,omitempty"`
	Platform      string    `json:"platform,omitempty"`
	Pending       int       `json:"pending"`
}

func (s *Server) SnapshotState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Connected:     s.sess != nil,
		EditorVersion: s.editor.Version,
		Platform:      s.editor.Platform,
	}
	if s.sess != nil {
		snap.ConnectedAt = s.connectedAt
		snap.Pending = s.sess.corr.Pending()
	}
	return snap
}

// HandleBridge upgrades the editor connection. The first frame must be a
// hello; a second editor while one is connected is turned away.
func (s *Server) HandleBridge(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c.SetReadLimit(s.cfg.MaxFrameBytes)

	ctx := r.Context()
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	_, data, err := c.Read(hctx)
	cancel()
	if err != nil {
		_ = c.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}
	env, err := wire.Decode(data)
	if err != nil || env.Kind != wire.KindHello {
		metrics.RecordProtocolError("bad_handshake")
		_ = c.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}
	var hello wire.HelloPayload
	// The hello payload is advisory; a host that sends garbage here
	// still gets a connection.
	_ = json.Unmarshal(env.Payload, &hello)

	sess := s.newSession(c)
	s.mu.Lock()
	if s.sess != nil {
		s.mu.Unlock()
		metrics.RecordSession("rejected")
		logx.Log.Warn().Str("remote_addr", r.RemoteAddr).Msg("second editor connection rejected")
		_ = c.Close(websocket.StatusPolicyViolation, "already connected")
		return
	}
	s.sess = sess
	s.connectedAt = time.Now()
	s.editor = hello
	s.mu.Unlock()

	metrics.SetEditorConnected(true)
	metrics.RecordSession("connected")
	logx.Log.Info().
		Str("session_id", sess.id).
		Str("remote_addr", r.RemoteAddr).
		Str("editor_version", hello.Version).
		Str("platform", hello.Platform).
		Msg("editor connected")

	if err := sess.pump.Send(wire.KindWelcome, wire.WelcomePayload{Message: "bridge ready", Version: s.version}); err != nil {
		s.dropSession(sess, err)
		return
	}

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			s.dropSession(sess, &wire.TransportError{Op: "read", Err: err})
			return
		}
		sess.router.Dispatch(data)
	}
}

// Close disconnects the editor, if any, with a going away frame. Used on
// server shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return
	}
	_ = sess.conn.Close(websocket.StatusGoingAway, "server shutting down")
	s.dropSession(sess, wire.ErrClosed)
}

// session is one editor connection. Its correlator dies with it, which is
// how pending callers learn about a disconnect.
type session struct {
	srv    *Server
	id     string
	conn   *websocket.Conn
	pump   *bridge.Pump
	corr   *bridge.Correlator
	router *bridge.Router
	once   sync.Once
}

func (s *Server) newSession(c *websocket.Conn) *session {
	sess := &session{srv: s, id: uuid.NewString(), conn: c, corr: bridge.NewCorrelator()}
	sess.corr.OnPending = metrics.SetPendingRequests
	sess.corr.OnDropped = metrics.RecordDroppedReply
	sess.pump = bridge.NewPump(c, func(err error) { s.dropSession(sess, err) })

	r := bridge.NewRouter()
	r.OnDrop = metrics.RecordProtocolError
	r.Handle(wire.KindPing, sess.onPing)
	r.Handle(wire.KindLog, sess.onLog)
	for _, kind := range []string{
		wire.KindCommandResult,
		wire.KindState,
		wire.KindObjectDetails,
		wire.KindScreenshot,
		wire.KindSceneManipulationResult,
		wire.KindAssetManagementResult,
	} {
		kind := kind
		r.Handle(kind, func(payload json.RawMessage) { sess.corr.Resolve(kind, payload) })
	}
	sess.router = r
	return sess
}

func (s *Server) dropSession(sess *session, err error) {
	sess.once.Do(func() {
		sess.pump.Stop()
		_ = sess.conn.CloseNow()

		s.mu.Lock()
		current := s.sess == sess
		if current {
			s.sess = nil
			s.editor = wire.HelloPayload{}
		}
		s.mu.Unlock()
		if !current {
			return
		}

		sess.corr.FailAll(err)
		metrics.SetEditorConnected(false)
		metrics.RecordSession("disconnected")

		var ce websocket.CloseError
		switch {
		case errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure:
			logx.Log.Info().Str("session_id", sess.id).Str("reason", ce.Reason).Msg("editor disconnected")
		case errors.Is(err, wire.ErrClosed):
			logx.Log.Info().Str("session_id", sess.id).Msg("editor connection closed for shutdown")
		default:
			logx.Log.Warn().Str("session_id", sess.id).Err(err).Msg("editor connection lost")
		}
	})
}

// onPing answers immediately, echoing the sender's timestamp so it can
// measure round trips.
func (se *session) onPing(raw json.RawMessage) {
	var p wire.PingPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	_ = se.pump.Send(wire.KindPong, wire.PongPayload{Timestamp: p.Timestamp})
}

// onLog sinks one relayed editor record into the bounded store.
func (se *session) onLog(raw json.RawMessage) {
	var p wire.LogPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		metrics.RecordProtocolError("bad_log")
		logx.Log.Warn().Err(err).Msg("dropping malformed log record")
		return
	}
	sev := logbuf.ParseSeverity(p.Severity)
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	se.srv.logs.Append(logbuf.Record{
		Message:    p.Message,
		StackTrace: p.StackTrace,
		Severity:   sev,
		Timestamp:  ts,
	})
	metrics.RecordRelayedLog(string(sev))
}

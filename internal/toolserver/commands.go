package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/setohima/UnityMCP-VRC/internal/logbuf"
	"github.com/setohima/UnityMCP-VRC/internal/metrics"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// timeoutFor returns the reply window for a request kind. Code execution
// and screenshots get the long window, everything else the default.
func (s *Server) timeoutFor(kind string) time.Duration {
	switch kind {
	case wire.KindExecuteCommand, wire.KindTakeScreenshot:
		return s.cfg.ExecTimeout
	}
	return s.cfg.ReplyTimeout
}

func (s *Server) current() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// request round trips one command over the current session. It fails fast
// with ErrNotConnected when no editor is on the bridge, so callers never
// wait out a timeout against a socket that does not exist.
func (s *Server) request(ctx context.Context, kind string, payload, out any) error {
	sess := s.current()
	if sess == nil {
		return wire.ErrNotConnected
	}
	replyKind, ok := wire.ReplyKind(kind)
	if !ok {
		return fmt.Errorf("kind %s has no reply", kind)
	}

	start := time.Now()
	raw, err := sess.corr.IssueRequest(ctx, replyKind, s.timeoutFor(kind), func() error {
		return sess.pump.Send(kind, payload)
	})
	metrics.RecordCommand(kind, err == nil, time.Since(start))
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			metrics.RecordProtocolError("bad_reply")
			return fmt.Errorf("decode %s reply: %w", replyKind, err)
		}
	}
	return nil
}

// ExecuteCommand runs a chunk of code inside the editor and returns its
// captured output. A result whose payload carried an error surfaces as a
// RemoteError before this returns.
func (s *Server) ExecuteCommand(ctx context.Context, code string) (wire.CommandResult, error) {
	var res wire.CommandResult
	if strings.TrimSpace(code) == "" {
		return res, fmt.Errorf("code is required")
	}
	err := s.request(ctx, wire.KindExecuteCommand, wire.ExecuteCommandPayload{Code: code}, &res)
	return res, err
}

// GetState fetches the editor's current state snapshot.
func (s *Server) GetState(ctx context.Context) (wire.EditorState, error) {
	var st wire.EditorState
	err := s.request(ctx, wire.KindGetState, struct{}{}, &st)
	return st, err
}

// GetObjectDetails fetches one object from the scene by name or path.
func (s *Server) GetObjectDetails(ctx context.Context, objectName string) (wire.ObjectDetails, error) {
	var det wire.ObjectDetails
	if strings.TrimSpace(objectName) == "" {
		return det, fmt.Errorf("objectName is required")
	}
	err := s.request(ctx, wire.KindGetObjectDetails, wire.GetObjectDetailsPayload{ObjectName: objectName}, &det)
	return det, err
}

// TakeScreenshot asks the editor for a rendered capture. Zero dimensions
// let the editor pick its defaults.
func (s *Server) TakeScreenshot(ctx context.Context, req wire.TakeScreenshotPayload) (wire.Screenshot, error) {
	var shot wire.Screenshot
	if req.Width < 0 || req.Height < 0 {
		return shot, fmt.Errorf("screenshot dimensions must not be negative")
	}
	err := s.request(ctx, wire.KindTakeScreenshot, req, &shot)
	return shot, err
}

// ManipulateScene applies one create, modify, delete, parent or duplicate
// action in the editor scene.
func (s *Server) ManipulateScene(ctx context.Context, req wire.ManipulateScenePayload) (wire.SceneManipulationResult, error) {
	var res wire.SceneManipulationResult
	if strings.TrimSpace(req.Action) == "" {
		return res, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return res, fmt.Errorf("name is required")
	}
	err := s.request(ctx, wire.KindManipulateScene, req, &res)
	return res, err
}

// ManageAssets runs one asset operation in the editor project.
func (s *Server) ManageAssets(ctx context.Context, req wire.ManageAssetsPayload) (wire.AssetManagementResult, error) {
	var res wire.AssetManagementResult
	if strings.TrimSpace(req.Action) == "" {
		return res, fmt.Errorf("action is required")
	}
	err := s.request(ctx, wire.KindManageAssets, req, &res)
	return res, err
}

// GetLogs queries the relayed editor log buffer. This never touches the
// socket; logs accumulate whether or not an editor is connected right now.
func (s *Server) GetLogs(f logbuf.Filter) ([]logbuf.Record, error) {
	return s.logs.Query(f)
}

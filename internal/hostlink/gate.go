package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// statusURLFor resolves the health gate endpoint, deriving it from the
// websocket URL when not configured explicitly.
func statusURLFor(cfg config.HostConfig) (string, error) {
	if cfg.StatusURL != "" {
		return cfg.StatusURL, nil
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("derive status url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("derive status url: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/status"
	u.RawQuery = ""
	return u.String(), nil
}

// probeGate asks the server's status endpoint whether dialing is worth
// it. Anything but a 200 with status "ok" keeps the socket closed.
func probeGate(ctx context.Context, statusURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return &wire.GateError{Reason: wire.GateUnreachable, Err: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &wire.GateError{Reason: wire.GateTimeout, Err: err}
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return &wire.GateError{Reason: wire.GateTimeout, Err: err}
		}
		return &wire.GateError{Reason: wire.GateUnreachable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &wire.GateError{Reason: wire.GateUnhealthy, Err: fmt.Errorf("status endpoint returned %d", resp.StatusCode)}
	}
	var st wire.StatusPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&st); err != nil {
		return &wire.GateError{Reason: wire.GateUnhealthy, Err: fmt.Errorf("parse status: %w", err)}
	}
	if st.Status != "ok" {
		return &wire.GateError{Reason: wire.GateUnhealthy, Err: fmt.Errorf("server reports status %q", st.Status)}
	}
	return nil
}

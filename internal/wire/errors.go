package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by caller operations while no editor
	// session is open.
	ErrNotConnected = errors.New("editor not connected")
	// ErrTimeout is returned when a reply does not arrive in time.
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrClosed rejects pending waiters when the session goes away.
	ErrClosed = errors.New("connection closed")
)

// GateReason classifies why the pre-flight health gate refused a dial.
type GateReason string

const (
	GateUnreachable GateReason = "unreachable"
	GateUnhealthy   GateReason = "unhealthy"
	GateTimeout     GateReason = "timeout"
)

type GateError struct {
	Reason GateReason
	Err    error
}

func (e *GateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("health gate %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("health gate %s", e.Reason)
}

func (e *GateError) Unwrap() error { return e.Err }

// TransportError wraps failures of the socket itself (dial, read, write).
// These are the only failures that tear a session down.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a reply whose payload carried an error field. The
// connection stays up; only the one operation failed.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

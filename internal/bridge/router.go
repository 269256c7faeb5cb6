package bridge

import (
	"encoding/json"
	"sync"

	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// HandlerFunc consumes the payload of one inbound envelope. Dispatch is
// strictly in arrival order, so a handler that needs slow work must hand
// it off and return instead of blocking the receive loop.
type HandlerFunc func(payload json.RawMessage)

// Router decodes inbound frames and dispatches them by kind. Malformed
// frames and unknown kinds are logged and dropped; a bad frame never
// tears down the connection.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	// OnDrop, when set, is told about every dropped frame with a short
	// reason (malformed, unknown_kind).
	OnDrop func(reason string)
}

func NewRouter() *Router {
	return &Router{handlers: map[string]HandlerFunc{}}
}

// Handle registers fn for kind, replacing any previous registration.
func (r *Router) Handle(kind string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = fn
}

// Dispatch decodes one complete text frame and runs its handler before
// returning.
func (r *Router) Dispatch(raw []byte) {
	env, err := wire.Decode(raw)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("dropping malformed frame")
		r.drop("malformed")
		return
	}
	r.mu.RLock()
	fn := r.handlers[env.Kind]
	r.mu.RUnlock()
	if fn == nil {
		logx.Log.Warn().Str("kind", env.Kind).Msg("dropping frame with no handler")
		r.drop("unknown_kind")
		return
	}
	fn(env.Payload)
}

func (r *Router) drop(reason string) {
	if r.OnDrop != nil {
		r.OnDrop(reason)
	}
}

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/setohima/UnityMCP-VRC/internal/logx"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

type result struct {
	payload json.RawMessage
	err     error
}

type waiter struct {
	kind      string
	createdAt time.Time
	ch        chan result
}

// Correlator matches replies to callers by kind in FIFO order. The wire
// protocol carries no request ids; ordering holds because the host runs
// privileged work single file, so replies of a kind come back in the
// order the requests went out.
type Correlator struct {
	mu     sync.Mutex
	queues map[string][]*waiter
	count  int

	// OnPending, when set, observes the number of outstanding waiters
	// after every change.
	OnPending func(n int)
	// OnDropped, when set, is told about replies that found no waiter.
	OnDropped func(kind string)
}

func NewCorrelator() *Correlator {
	return &Correlator{queues: map[string][]*waiter{}}
}

// IssueRequest registers a waiter for replyKind, invokes send, then waits
// for the reply. Registration happens before send so a fast reply can
// never miss its waiter. The waiter is withdrawn on timeout or context
// cancellation; a reply arriving after that is dropped.
func (c *Correlator) IssueRequest(ctx context.Context, replyKind string, timeout time.Duration, send func() error) (json.RawMessage, error) {
	w := c.register(replyKind)
	if err := send(); err != nil {
		c.remove(replyKind, w)
		return nil, err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-w.ch:
		return res.payload, res.err
	case <-t.C:
		if !c.remove(replyKind, w) {
			// Resolved while the timer fired; the result is already in
			// flight on the buffered channel.
			res := <-w.ch
			return res.payload, res.err
		}
		return nil, fmt.Errorf("%w: %s after %s", wire.ErrTimeout, replyKind, timeout)
	case <-ctx.Done():
		if !c.remove(replyKind, w) {
			res := <-w.ch
			return res.payload, res.err
		}
		return nil, ctx.Err()
	}
}

// Resolve hands an inbound reply to the oldest waiter for kind and
// reports whether one existed. Reply payloads carrying an error field
// reject the waiter instead of resolving it; the connection stays up
// either way.
func (c *Correlator) Resolve(kind string, payload json.RawMessage) bool {
	c.mu.Lock()
	q := c.queues[kind]
	if len(q) == 0 {
		c.mu.Unlock()
		logx.Log.Warn().Str("kind", kind).Msg("dropping reply with no waiter")
		if c.OnDropped != nil {
			c.OnDropped(kind)
		}
		return false
	}
	w := q[0]
	if len(q) == 1 {
		delete(c.queues, kind)
	} else {
		c.queues[kind] = q[1:]
	}
	c.count--
	n := c.count
	c.mu.Unlock()
	c.pending(n)

	if msg, ok := wire.ReplyError(payload); ok {
		w.ch <- result{err: &wire.RemoteError{Kind: kind, Message: msg}}
	} else {
		w.ch <- result{payload: payload}
	}
	return true
}

// FailAll rejects every outstanding waiter, typically with a connection
// lost error when the session goes away.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	queues := c.queues
	c.queues = map[string][]*waiter{}
	c.count = 0
	c.mu.Unlock()
	c.pending(0)

	for _, q := range queues {
		for _, w := range q {
			w.ch <- result{err: err}
		}
	}
}

// Pending reports the number of outstanding waiters.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *Correlator) register(kind string) *waiter {
	w := &waiter{kind: kind, createdAt: time.Now(), ch: make(chan result, 1)}
	c.mu.Lock()
	c.queues[kind] = append(c.queues[kind], w)
	c.count++
	n := c.count
	c.mu.Unlock()
	c.pending(n)
	return w
}

// remove withdraws w if it is still queued and reports whether it was.
func (c *Correlator) remove(kind string, w *waiter) bool {
	c.mu.Lock()
	q := c.queues[kind]
	for i, cand := range q {
		if cand == w {
			c.queues[kind] = append(q[:i:i], q[i+1:]...)
			if len(c.queues[kind]) == 0 {
				delete(c.queues, kind)
			}
			c.count--
			n := c.count
			c.mu.Unlock()
			c.pending(n)
			return true
		}
	}
	c.mu.Unlock()
	return false
}

func (c *Correlator) pending(n int) {
	if c.OnPending != nil {
		c.OnPending(n)
	}
}

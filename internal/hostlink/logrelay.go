package hostlink

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

const relayQueueSize = 256

// LogRelay forwards host log events to the server as fire and forget log
// envelopes. The queue is bounded with oldest-first eviction, and the
// relay never logs its own failures, so a dying connection cannot feed
// events back into the relay.
type LogRelay struct {
	link *Link

	mu       sync.Mutex
	queue    []wire.LogPayload
	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLogRelay starts the relay's sender. Attach it with
// logx.Log = logx.Log.Hook(relay).
func NewLogRelay(link *Link) *LogRelay {
	r := &LogRelay{
		link:   link,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Run implements zerolog.Hook.
func (r *LogRelay) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level == zerolog.NoLevel || message == "" {
		return
	}
	r.enqueue(wire.LogPayload{
		Message:   message,
		Severity:  severityOf(level),
		Timestamp: time.Now().UTC(),
	})
}

// Close stops the sender. Queued records are abandoned.
func (r *LogRelay) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Len reports how many records are waiting.
func (r *LogRelay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *LogRelay) enqueue(p wire.LogPayload) {
	r.mu.Lock()
	if len(r.queue) >= relayQueueSize {
		r.queue = r.queue[1:]
		RecordRelayDropped()
	}
	r.queue = append(r.queue, p)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *LogRelay) run() {
	for {
		select {
		case <-r.stop:
			return
		case <-r.notify:
		}
		r.drain()
	}
}

// drain sends until the queue is empty or the link is unusable. Records
// held across a disconnect flush on the next log event after reconnect;
// the reconnect itself logs, so the kick is built in.
func (r *LogRelay) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 || !r.link.IsUsable() {
			r.mu.Unlock()
			return
		}
		p := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		if err := r.link.SendLog(p); err != nil {
			// The link died under us. The record is gone; the rest of
			// the queue waits for the next session.
			RecordRelayDropped()
			return
		}
		RecordRelayedLog()
	}
}

func severityOf(l zerolog.Level) string {
	switch l {
	case zerolog.TraceLevel:
		return "trace"
	case zerolog.DebugLevel:
		return "debug"
	case zerolog.InfoLevel:
		return "info"
	case zerolog.WarnLevel:
		return "warn"
	case zerolog.ErrorLevel:
		return "error"
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return "fatal"
	default:
		return "info"
	}
}

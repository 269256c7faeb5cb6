// Package mainthread funnels work onto the host's single privileged
// executor, the way the editor only mutates its state between frames.
// Units run in submission order, exactly once, with no reentrancy.
package mainthread

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStopped fails submissions after the dispatcher has shut down.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrQueueFull rejects a submission when the backlog is absurd
	// rather than blocking the submitter.
	ErrQueueFull = errors.New("privileged queue full")
)

// Work runs on the privileged context and yields the reply payload.
type Work func() (any, error)

// Pending is the caller's handle on one submitted unit.
type Pending struct {
	done chan struct{}
	val  any
	err  error
}

func (p *Pending) complete(v any, err error) {
	p.val, p.err = v, err
	close(p.done)
}

// Await blocks until the unit completes or ctx ends. Cancelling ctx does
// not cancel the unit; it still runs exactly once.
func (p *Pending) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports completion without blocking.
func (p *Pending) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

type queued struct {
	work Work
	p    *Pending
}

// Dispatcher owns the privileged context. One consumer loop drains the
// queue; everything else only submits.
type Dispatcher struct {
	mu      sync.Mutex
	queue   chan queued
	stopped bool

	// WaitReady, when set, runs before every unit and may hold it back,
	// for example while the editor is compiling. An error fails the unit
	// without running it.
	WaitReady func(ctx context.Context) error
}

func NewDispatcher(depth int) *Dispatcher {
	if depth <= 0 {
		depth = 256
	}
	return &Dispatcher{queue: make(chan queued, depth)}
}

// Submit queues work for the privileged context. A unit submitted while
// another is running simply waits its turn.
func (d *Dispatcher) Submit(w Work) (*Pending, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil, ErrStopped
	}
	p := &Pending{done: make(chan struct{})}
	select {
	case d.queue <- queued{work: w, p: p}:
		return p, nil
	default:
		return nil, ErrQueueFull
	}
}

// Run consumes the queue until ctx ends. Units still queued at shutdown
// are failed with ErrStopped, never left pending.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case q := <-d.queue:
			if d.WaitReady != nil {
				if err := d.WaitReady(ctx); err != nil {
					q.p.complete(nil, err)
					continue
				}
			}
			v, err := run(q.work)
			q.p.complete(v, err)
		}
	}
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	for {
		select {
		case q := <-d.queue:
			q.p.complete(nil, ErrStopped)
		default:
			return
		}
	}
}

// run executes one unit, converting a panic into an error so a broken
// handler fails its caller instead of the whole host.
func run(w Work) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("privileged work panicked: %v", r)
		}
	}()
	return w()
}

// Package bridge holds the connection plumbing shared by both peers: a
// serialized write pump, the kind router for inbound frames, and the FIFO
// reply correlator.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

const writeTimeout = 10 * time.Second

// Pump owns the write side of one connection. Heartbeats, replies and log
// forwarding all send through it so frames are written one at a time and
// never interleave. The first write error stops the pump and reports once
// through the failure callback.
type Pump struct {
	conn    *websocket.Conn
	ch      chan []byte
	closed  chan struct{}
	once    sync.Once
	failure func(error)
}

func NewPump(conn *websocket.Conn, onFailure func(error)) *Pump {
	p := &Pump{
		conn:    conn,
		ch:      make(chan []byte, 64),
		closed:  make(chan struct{}),
		failure: onFailure,
	}
	go p.run()
	return p
}

func (p *Pump) run() {
	for {
		select {
		case <-p.closed:
			return
		case b := <-p.ch:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := p.conn.Write(ctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				p.fail(&wire.TransportError{Op: "write", Err: err})
				return
			}
		}
	}
}

func (p *Pump) fail(err error) {
	p.once.Do(func() {
		close(p.closed)
		if p.failure != nil {
			p.failure(err)
		}
	})
}

// Send encodes an envelope and queues it for writing. It fails fast once
// the pump has stopped.
func (p *Pump) Send(kind string, payload any) error {
	b, err := wire.Encode(kind, payload)
	if err != nil {
		return err
	}
	return p.SendRaw(b)
}

// SendRaw queues an already encoded frame.
func (p *Pump) SendRaw(b []byte) error {
	select {
	case <-p.closed:
		return wire.ErrClosed
	default:
	}
	select {
	case <-p.closed:
		return wire.ErrClosed
	case p.ch <- b:
		return nil
	}
}

// Stop makes further sends fail fast without reporting a failure. The
// socket itself is closed by the owner.
func (p *Pump) Stop() {
	p.once.Do(func() { close(p.closed) })
}

// Package net carries board frames between the host and its guests.
package net

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrClosed      = errors.New("connection closed")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrNoSession   = errors.New("no session with that code")
)

// MaxFrameSize bounds one inbound frame. State snapshots carry a PNG per
// page, so this is generous.
const MaxFrameSize = 32 << 20

// Conn is one ordered, reliable frame stream to a peer.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Listener hands out the host side of each guest connection.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

// inbox buffers frames between a transport's reader and Receive.
type inbox struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
}

func newInbox(size int) *inbox {
	return &inbox{frames: make(chan []byte, size), done: make(chan struct{})}
}

// push blocks while the buffer is full. It reports false once the inbox
// has failed.
func (b *inbox) push(frame []byte) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.frames <- frame:
		return true
	case <-b.done:
		return false
	}
}

func (b *inbox) fail(err error) {
	b.once.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		b.err = err
		close(b.done)
	})
}

func (b *inbox) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// receive drains buffered frames before reporting the failure.
func (b *inbox) receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-b.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		select {
		case f := <-b.frames:
			return f, nil
		default:
		}
		return nil, b.err
	}
}

// queue is the accept backlog shared by the listeners.
type queue struct {
	conns  chan Conn
	closed chan struct{}
	once   sync.Once
}

func newQueue(size int) *queue {
	return &queue{conns: make(chan Conn, size), closed: make(chan struct{})}
}

func (q *queue) push(c Conn) bool {
	select {
	case q.conns <- c:
		return true
	case <-q.closed:
		return false
	}
}

func (q *queue) accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-q.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, ErrClosed
	}
}

func (q *queue) close() {
	q.once.Do(func() {
		close(q.closed)
		for {
			select {
			case c := <-q.conns:
				c.Close()
			default:
				return
			}
		}
	})
}

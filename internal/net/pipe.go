package net

import (
	"context"
	"sync"
)

type pipeConn struct {
	id   string
	in   *inbox
	peer *pipeConn
	once sync.Once
}

// Pipe returns two connected in-memory ends. Closing either end closes
// both, after the other side has drained what was already sent.
func Pipe(aID, bID string) (Conn, Conn) {
	a := &pipeConn{id: aID, in: newInbox(1024)}
	b := &pipeConn{id: bID, in: newInbox(1024)}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeConn) ID() string { return p.id }

func (p *pipeConn) Send(frame []byte) error {
	if p.in.closed() {
		return ErrClosed
	}
	if !p.peer.in.push(append([]byte(nil), frame...)) {
		return ErrClosed
	}
	return nil
}

func (p *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	return p.in.receive(ctx)
}

func (p *pipeConn) Close() error {
	p.once.Do(func() {
		p.in.fail(ErrClosed)
		p.peer.in.fail(ErrClosed)
	})
	return nil
}

// PipeListener is an in-memory Listener. Dial hands the host end to the
// next Accept and returns the guest end.
type PipeListener struct {
	q *queue
}

func NewPipeListener() *PipeListener {
	return &PipeListener{q: newQueue(16)}
}

// Dial connects a guest. The host sees the connection under guestID.
func (l *PipeListener) Dial(guestID string) (Conn, error) {
	hostEnd, guestEnd := Pipe(guestID, "host")
	if !l.q.push(hostEnd) {
		return nil, ErrClosed
	}
	return guestEnd, nil
}

func (l *PipeListener) Accept(ctx context.Context) (Conn, error) { return l.q.accept(ctx) }

func (l *PipeListener) Addr() string { return "pipe" }

func (l *PipeListener) Close() error {
	l.q.close()
	return nil
}

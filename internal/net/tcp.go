package net

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// tcpConn frames messages as one line each, so frames must not contain
// a raw newline. The JSON codec guarantees that.
type tcpConn struct {
	id   string
	conn net.Conn
	in   *inbox
	wmu  sync.Mutex
	once sync.Once
}

func newTCPConn(c net.Conn, id string) *tcpConn {
	t := &tcpConn{id: id, conn: c, in: newInbox(64)}
	go t.readLoop()
	return t
}

func (t *tcpConn) readLoop() {
	r := bufio.NewReaderSize(t.conn, 64<<10)
	for {
		line, err := readLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = ErrClosed
			}
			t.in.fail(err)
			t.conn.Close()
			return
		}
		if len(line) == 0 {
			continue
		}
		if !t.in.push(line) {
			return
		}
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(buf)+len(chunk) > MaxFrameSize {
			return nil, fmt.Errorf("frame larger than %d bytes", MaxFrameSize)
		}
		buf = append(buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf, "\r\n"), nil
	}
}

func (t *tcpConn) ID() string { return t.id }

func (t *tcpConn) Send(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return errors.New("tcp frame contains a newline")
	}
	if t.in.closed() {
		return ErrClosed
	}
	data := make([]byte, 0, len(frame)+1)
	data = append(append(data, frame...), '\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("sending to %s: %w", t.id, err)
	}
	return nil
}

func (t *tcpConn) Receive(ctx context.Context) ([]byte, error) {
	return t.in.receive(ctx)
}

func (t *tcpConn) Close() error {
	var err error
	t.once.Do(func() {
		t.in.fail(ErrClosed)
		err = t.conn.Close()
	})
	return err
}

// TCPListener accepts guests on a plain TCP port.
type TCPListener struct {
	ln net.Listener
}

func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	if tl, ok := l.ln.(*net.TCPListener); ok {
		stop := context.AfterFunc(ctx, func() { tl.SetDeadline(time.Unix(1, 0)) })
		defer stop()
	}
	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			if tl, ok := l.ln.(*net.TCPListener); ok {
				tl.SetDeadline(time.Time{})
			}
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return newTCPConn(c, c.RemoteAddr().String()), nil
}

func (l *TCPListener) Addr() string { return l.ln.Addr().String() }

func (l *TCPListener) Close() error { return l.ln.Close() }

// DialTCP connects to a host. The connection's id is its local address,
// which is how the host names it too.
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return newTCPConn(c, c.LocalAddr().String()), nil
}

package net

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// wsConn sends one websocket message per frame. Binary codecs use binary
// messages, JSON uses text.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	binary bool
	in     *inbox
	wmu    sync.Mutex
	once   sync.Once
	done   chan struct{}
}

func newWSConn(id string, ws *websocket.Conn, binary bool) *wsConn {
	c := &wsConn{id: id, ws: ws, binary: binary, in: newInbox(64), done: make(chan struct{})}
	ws.SetReadLimit(MaxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.readLoop()
	go c.pingLoop()
	return c
}

func (c *wsConn) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrClosed
			}
			c.in.fail(err)
			return
		}
		if !c.in.push(data) {
			return
		}
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.in.fail(fmt.Errorf("ping %s: %w", c.id, err))
				c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(frame []byte) error {
	if c.in.closed() {
		return ErrClosed
	}
	kind := websocket.TextMessage
	if c.binary {
		kind = websocket.BinaryMessage
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(kind, frame); err != nil {
		return fmt.Errorf("sending to %s: %w", c.id, err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.in.fail(ErrClosed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// DialWS opens a websocket to a host's /ws/{code} endpoint.
func DialWS(ctx context.Context, url string, binary bool) (Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("dialing %s: %w", url, ErrNoSession)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return newWSConn(ws.LocalAddr().String(), ws, binary), nil
}

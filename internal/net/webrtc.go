package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

const (
	// iceGatherTimeout bounds candidate gathering before the SDP is sent.
	iceGatherTimeout   = 15 * time.Second
	channelOpenTimeout = 20 * time.Second
	channelLabel       = "board"
)

func rtcConfig(iceURLs []string) webrtc.Configuration {
	if len(iceURLs) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: iceURLs}}}
}

// rtcConn is one ordered data channel. Each data channel message is one
// frame.
type rtcConn struct {
	id     string
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	binary bool
	in     *inbox
	once   sync.Once
}

func newRTCConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, binary bool) *rtcConn {
	c := &rtcConn{id: "rtc-" + uuid.NewString()[:8], pc: pc, dc: dc, binary: binary, in: newInbox(64)}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if len(msg.Data) > MaxFrameSize {
			c.in.fail(fmt.Errorf("frame larger than %d bytes", MaxFrameSize))
			return
		}
		c.in.push(msg.Data)
	})
	dc.OnClose(func() { c.in.fail(ErrClosed) })
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.in.fail(fmt.Errorf("peer connection %s: %w", s, ErrClosed))
		}
	})
	return c
}

func (c *rtcConn) ID() string { return c.id }

func (c *rtcConn) Send(frame []byte) error {
	if c.in.closed() {
		return ErrClosed
	}
	var err error
	if c.binary {
		err = c.dc.Send(frame)
	} else {
		err = c.dc.SendText(string(frame))
	}
	if err != nil {
		return fmt.Errorf("sending to %s: %w", c.id, err)
	}
	return nil
}

func (c *rtcConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

func (c *rtcConn) Close() error {
	var err error
	c.once.Do(func() {
		c.in.fail(ErrClosed)
		c.dc.Close()
		err = c.pc.Close()
	})
	return err
}

func waitGathered(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gathered:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// answerOffer accepts a guest's offer. ready is called once the guest's
// data channel opens.
func answerOffer(ctx context.Context, config webrtc.Configuration, offer webrtc.SessionDescription, binary bool, ready func(Conn)) (*webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			return
		}
		c := newRTCConn(pc, dc, binary)
		dc.OnOpen(func() { ready(c) })
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating answer: %w", err)
	}
	if err := waitGathered(ctx, pc, answer); err != nil {
		pc.Close()
		return nil, err
	}
	return pc.LocalDescription(), nil
}

// DialRTC opens a data channel to a host. The offer, with every ICE
// candidate gathered, is POSTed to the host's /rtc/{code} endpoint and
// the response body is the answer.
func DialRTC(ctx context.Context, url string, binary bool, iceURLs []string) (Conn, error) {
	pc, err := webrtc.NewPeerConnection(rtcConfig(iceURLs))
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	ordered := true
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	c := newRTCConn(pc, dc, binary)
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	if err := waitGathered(ctx, pc, offer); err != nil {
		c.Close()
		return nil, err
	}
	answer, err := postOffer(ctx, url, *pc.LocalDescription())
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		c.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	select {
	case <-opened:
		return c, nil
	case <-c.in.done:
		return nil, c.in.err
	case <-time.After(channelOpenTimeout):
		c.Close()
		return nil, fmt.Errorf("data channel did not open within %s", channelOpenTimeout)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

func postOffer(ctx context.Context, url string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	var answer webrtc.SessionDescription
	body, err := json.Marshal(offer)
	if err != nil {
		return answer, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return answer, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return answer, fmt.Errorf("posting offer to %s: %w", url, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return answer, fmt.Errorf("posting offer to %s: %w", url, ErrNoSession)
	case resp.StatusCode != http.StatusOK:
		return answer, fmt.Errorf("posting offer to %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return answer, fmt.Errorf("decoding answer: %w", err)
	}
	return answer, nil
}

package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	LinkScheme = "sharedboard"
	// legacyScheme links carried only host:port and spoke TCP.
	legacyScheme = "localboard"

	TransportTCP    = "tcp"
	TransportWS     = "ws"
	TransportWebRTC = "webrtc"
)

var (
	ErrBadLink          = errors.New("not a share link")
	ErrUnknownTransport = errors.New("unknown transport")
)

// ShareLink is what a host hands to its guests:
// sharedboard://<ip>:<port>/<code>?transport=ws
type ShareLink struct {
	Host      string
	Port      int
	Code      string
	Transport string
	Codec     string
}

func (l ShareLink) String() string {
	q := url.Values{}
	q.Set("transport", l.Transport)
	if l.Codec != "" && l.Codec != "json" {
		q.Set("codec", l.Codec)
	}
	u := url.URL{Scheme: LinkScheme, Host: l.Addr(), Path: "/" + l.Code, RawQuery: q.Encode()}
	return u.String()
}

func (l ShareLink) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// Endpoint is the URL or address the link's transport dials.
func (l ShareLink) Endpoint() string {
	switch l.Transport {
	case TransportWS:
		return "ws://" + l.Addr() + "/ws/" + url.PathEscape(l.Code)
	case TransportWebRTC:
		return "http://" + l.Addr() + "/rtc/" + url.PathEscape(l.Code)
	}
	return l.Addr()
}

func ParseShareLink(raw string) (ShareLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ShareLink{}, fmt.Errorf("%w: %v", ErrBadLink, err)
	}
	var l ShareLink
	switch u.Scheme {
	case LinkScheme:
		l.Transport = u.Query().Get("transport")
		if l.Transport == "" {
			l.Transport = TransportWS
		}
		l.Codec = u.Query().Get("codec")
	case legacyScheme:
		l.Transport = TransportTCP
	default:
		return ShareLink{}, fmt.Errorf("%w: scheme %q", ErrBadLink, u.Scheme)
	}
	if l.Codec == "" {
		l.Codec = "json"
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return ShareLink{}, fmt.Errorf("%w: %v", ErrBadLink, err)
	}
	l.Host = host
	if l.Port, err = strconv.Atoi(port); err != nil || l.Port <= 0 || l.Port > 65535 {
		return ShareLink{}, fmt.Errorf("%w: bad port %q", ErrBadLink, port)
	}
	l.Code = strings.Trim(u.Path, "/")
	switch l.Transport {
	case TransportTCP, TransportWS, TransportWebRTC:
	default:
		return ShareLink{}, fmt.Errorf("%w: %q", ErrUnknownTransport, l.Transport)
	}
	return l, nil
}

// Dial connects a guest to the host named by the link.
func Dial(ctx context.Context, l ShareLink, iceServers []string) (Conn, error) {
	binary := l.Codec == "cbor"
	switch l.Transport {
	case TransportTCP:
		return DialTCP(ctx, l.Addr())
	case TransportWS:
		return DialWS(ctx, l.Endpoint(), binary)
	case TransportWebRTC:
		return DialRTC(ctx, l.Endpoint(), binary, iceServers)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, l.Transport)
}

// Listen opens the host side of a transport on addr.
func Listen(transport, addr string, opts ServerOptions) (Listener, error) {
	switch transport {
	case TransportTCP:
		return ListenTCP(addr)
	case TransportWS, TransportWebRTC:
		s := NewServer(opts)
		if err := s.Listen(addr); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
}

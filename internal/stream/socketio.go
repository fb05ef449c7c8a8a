package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Engine.IO v4 packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, carried inside engine messages.
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
	writeWait           = 10 * time.Second
	maxFrameSize        = 1 << 20
)

var errSessionClosed = errors.New("upstream closed the session")

// openPacket is the Engine.IO handshake sent by the server.
type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// frame is one Socket.IO event received from the upstream.
type frame struct {
	Name string
	// Data is the first event argument, nil when the event carries none.
	Data json.RawMessage
}

// socketURL maps an http(s) or ws(s) endpoint to the Engine.IO WebSocket
// transport URL. The default "/socket.io/" path is used when none is given.
func socketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid stream URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported stream URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream URL %q has no host", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session is one established Socket.IO connection. next and the ping
// replies run on the reader goroutine only; close may be called from anywhere.
type session struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// dialSession opens the WebSocket, performs the Engine.IO handshake and
// joins the default namespace.
func dialSession(ctx context.Context, dialer *websocket.Dialer, wsURL string, handshakeTimeout time.Duration) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxFrameSize)

	s := &session{conn: conn}
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	deadline := time.Now().Add(handshakeTimeout)
	if err := s.handshake(deadline); err != nil {
		s.close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("handshake interrupted: %w", ctx.Err())
		}
		return nil, err
	}
	return s, nil
}

func (s *session) handshake(deadline time.Time) error {
	_ = s.conn.SetReadDeadline(deadline)

	p, err := s.read()
	if err != nil {
		return fmt.Errorf("failed to read open packet: %w", err)
	}
	if len(p) == 0 || p[0] != engineOpen {
		return fmt.Errorf("unexpected first packet %q", truncate(p))
	}
	var open openPacket
	if err := json.Unmarshal(p[1:], &open); err != nil {
		return fmt.Errorf("failed to decode open packet: %w", err)
	}
	interval := time.Duration(open.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(open.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	s.readTimeout = interval + timeout

	if err := s.write([]byte{engineMessage, socketConnect}); err != nil {
		return fmt.Errorf("failed to join namespace: %w", err)
	}

	for {
		p, err := s.read()
		if err != nil {
			return fmt.Errorf("failed to read namespace ack: %w", err)
		}
		if len(p) == 0 {
			continue
		}
		switch p[0] {
		case enginePing:
			if err := s.pong(p); err != nil {
				return err
			}
		case engineClose:
			return errSessionClosed
		case engineMessage:
			if len(p) < 2 {
				continue
			}
			switch p[1] {
			case socketConnect:
				return nil
			case socketConnectError:
				return fmt.Errorf("namespace connect rejected: %s", truncate(p[2:]))
			}
		}
	}
}

// next blocks until the upstream sends an event. It answers pings on the way
// and fails when the session ends or the server goes silent for longer than
// ping interval + ping timeout.
func (s *session) next() (frame, error) {
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		p, err := s.read()
		if err != nil {
			return frame{}, err
		}
		if len(p) == 0 {
			continue
		}
		switch p[0] {
		case enginePing:
			if err := s.pong(p); err != nil {
				return frame{}, err
			}
		case engineClose:
			return frame{}, errSessionClosed
		case engineNoop, enginePong:
		case engineMessage:
			if len(p) < 2 {
				continue
			}
			switch p[1] {
			case socketDisconnect:
				return frame{}, errSessionClosed
			case socketEvent:
				if f, ok := parseEvent(p[2:]); ok {
					return f, nil
				}
			}
		}
	}
}

// read returns the next text message. Binary attachments are skipped.
func (s *session) read() ([]byte, error) {
	for {
		kind, p, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return p, nil
		}
	}
}

func (s *session) pong(ping []byte) error {
	reply := append([]byte{enginePong}, ping[1:]...)
	if err := s.write(reply); err != nil {
		return fmt.Errorf("failed to answer ping: %w", err)
	}
	return nil
}

func (s *session) write(p []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, p)
}

func (s *session) close() {
	_ = s.conn.Close()
}

// parseEvent decodes the body of an EVENT packet: an optional "/nsp,"
// prefix, an optional ack id, then ["name", args...].
func parseEvent(body []byte) (frame, bool) {
	if len(body) > 0 && body[0] == '/' {
		i := bytes.IndexByte(body, ',')
		if i < 0 {
			return frame{}, false
		}
		body = body[i+1:]
	}
	for len(body) > 0 && body[0] >= '0' && body[0] <= '9' {
		body = body[1:]
	}

	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil || len(args) == 0 {
		return frame{}, false
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return frame{}, false
	}
	f := frame{Name: name}
	if len(args) > 1 {
		f.Data = args[1]
	}
	return f, true
}

func truncate(p []byte) string {
	const max = 120
	s := string(p)
	if len(s) > max {
		return s[:max] + "..."
	}
	return strings.TrimSpace(s)
}

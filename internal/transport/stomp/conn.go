// Package stomp speaks STOMP 1.2 over websocket to the push broker.
package stomp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// ErrBroker wraps ERROR frames received from the broker.
var ErrBroker = errors.New("stomp broker error")

const writeTimeout = 5 * time.Second

// Dialer opens STOMP sessions over websocket. It implements connection.Dialer.
type Dialer struct {
	url     string
	host    string
	session *domain.Session
	ws      *websocket.Dialer
}

// NewDialer creates a Dialer for url (ws:// or wss://) authenticated as session.
func NewDialer(url string, session *domain.Session) *Dialer {
	return &Dialer{
		url:     url,
		host:    "/",
		session: session,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{"v12.stomp"},
		},
	}
}

// Dial performs the websocket upgrade and the STOMP CONNECT/CONNECTED
// exchange. Both are bounded by ctx.
func (d *Dialer) Dial(ctx context.Context) (connection.Conn, error) {
	header := http.Header{}
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, d.host,
		frame.HeartBeat, "0,0",
	)
	if d.session != nil && d.session.Token != "" {
		header.Set("Authorization", "Bearer "+d.session.Token)
		connect.Header.Add("Authorization", "Bearer "+d.session.Token)
	}

	ws, resp, err := d.ws.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("websocket upgrade: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	// Unblock the CONNECTED read if ctx ends first.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	c := &Conn{ws: ws, subs: make(map[string]string)}
	if err := c.write(connect); err != nil {
		ws.Close()
		return nil, handshakeErr(ctx, err)
	}

	for {
		f, err := c.next()
		if err != nil {
			ws.Close()
			return nil, handshakeErr(ctx, err)
		}
		if f.Command == frame.CONNECTED {
			c.version = f.Header.Get(frame.Version)
			break
		}
	}

	if !stop() {
		// ctx fired after CONNECTED but the socket is already closed.
		return nil, handshakeErr(ctx, context.Cause(ctx))
	}

	log.Debug().Str("url", d.url).Str("version", c.version).Msg("stomp session established")
	return c, nil
}

// handshakeErr prefers the ctx error so timeouts surface as DeadlineExceeded.
func handshakeErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("stomp handshake: %w", ctxErr)
	}
	return fmt.Errorf("stomp handshake: %w", err)
}

// Conn is an established STOMP session. It implements connection.Conn.
type Conn struct {
	ws      *websocket.Conn
	version string

	wmu  sync.Mutex
	mu   sync.Mutex
	subs map[string]string // destination -> subscription id

	closeOnce sync.Once
	closeErr  error
}

// Subscribe sends SUBSCRIBE for destination. Repeated calls are no-ops.
func (c *Conn) Subscribe(destination string) error {
	c.mu.Lock()
	if _, ok := c.subs[destination]; ok {
		c.mu.Unlock()
		return nil
	}
	id := uuid.NewString()
	c.subs[destination] = id
	c.mu.Unlock()

	err := c.write(frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	))
	if err != nil {
		c.mu.Lock()
		delete(c.subs, destination)
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return nil
}

// ReadFrame returns the next MESSAGE. ERROR frames and socket errors are
// returned as errors; everything else is skipped.
func (c *Conn) ReadFrame() (connection.Frame, error) {
	for {
		f, err := c.next()
		if err != nil {
			return connection.Frame{}, err
		}
		switch f.Command {
		case frame.MESSAGE:
			return connection.Frame{Topic: f.Header.Get(frame.Destination), Body: f.Body}, nil
		case frame.RECEIPT:
		default:
			log.Debug().Str("command", f.Command).Msg("stomp frame ignored")
		}
	}
}

// Close sends DISCONNECT best effort and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.write(frame.New(frame.DISCONNECT))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// next reads until a non-heartbeat frame. ERROR frames become errors.
func (c *Conn) next() (*frame.Frame, error) {
	for {
		f, err := readFrame(c.ws)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		if f.Command == frame.ERROR {
			msg := f.Header.Get(frame.Message)
			if msg == "" {
				msg = string(f.Body)
			}
			return nil, fmt.Errorf("%w: %s", ErrBroker, msg)
		}
		return f, nil
	}
}

func (c *Conn) write(f *frame.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return writeFrame(c.ws, f)
}

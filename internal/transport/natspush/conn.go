// Package natspush receives notification pushes from per-user NATS subjects.
// Library reconnects are disabled; connection.Manager owns the lifecycle.
package natspush

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

const (
	clientName    = "money-tracker-notifier"
	defaultBuffer = 256
	defaultDial   = 10 * time.Second
)

// Dialer connects to a NATS server with the session token.
type Dialer struct {
	url     string
	session *domain.Session
}

// NewDialer creates a Dialer for url, e.g. "nats://localhost:4222".
func NewDialer(url string, session *domain.Session) *Dialer {
	return &Dialer{url: url, session: session}
}

// Dial connects. nats.Connect has no context, so the attempt runs in the
// background and a late connection is closed if ctx ends first.
func (d *Dialer) Dial(ctx context.Context) (connection.Conn, error) {
	c := &Conn{
		msgs: make(chan *nats.Msg, defaultBuffer),
		done: make(chan struct{}),
		subs: make(map[string]*nats.Subscription),
	}

	timeout := defaultDial
	if deadline, ok := ctx.Deadline(); ok {
		if timeout = time.Until(deadline); timeout <= 0 {
			return nil, fmt.Errorf("nats connect: %w", context.DeadlineExceeded)
		}
	}
	opts := []nats.Option{
		nats.Name(clientName),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.shutdown(err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.shutdown(nats.ErrConnectionClosed)
		}),
	}
	if d.session != nil && d.session.Token != "" {
		opts = append(opts, nats.Token(d.session.Token))
	}

	type result struct {
		nc  *nats.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(d.url, opts...)
		ch <- result{nc, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, nats.ErrAuthorization) {
				return nil, fmt.Errorf("nats connect: %w", domain.ErrUnauthorized)
			}
			return nil, fmt.Errorf("nats connect: %w", r.err)
		}
		c.nc = r.nc
		log.Debug().Str("url", r.nc.ConnectedUrlRedacted()).Msg("nats push connection established")
		return c, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, fmt.Errorf("nats connect: %w", ctx.Err())
	}
}

// Conn delivers messages from subscribed subjects.
type Conn struct {
	nc   *nats.Conn
	msgs chan *nats.Msg

	mu   sync.Mutex
	subs map[string]*nats.Subscription

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

// Subscribe starts delivery for subject. Repeated calls are no-ops.
func (c *Conn) Subscribe(subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[subject]; ok {
		return nil
	}
	sub, err := c.nc.ChanSubscribe(subject, c.msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs[subject] = sub
	return nil
}

// ReadFrame blocks until a message arrives or the connection goes away.
func (c *Conn) ReadFrame() (connection.Frame, error) {
	select {
	case m := <-c.msgs:
		return connection.Frame{Topic: m.Subject, Body: m.Data}, nil
	case <-c.done:
		return connection.Frame{}, c.err
	}
}

// Close closes the NATS connection and unblocks ReadFrame.
func (c *Conn) Close() error {
	c.nc.Close()
	c.shutdown(nats.ErrConnectionClosed)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.doneOnce.Do(func() {
		if err == nil {
			err = nats.ErrConnectionClosed
		}
		c.err = err
		close(c.done)
	})
}

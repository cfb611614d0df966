package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// manualClock records scheduled timers; tests fire them explicitly.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fireNext runs the oldest active timer synchronously.
func (c *manualClock) fireNext(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	var next *manualTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired {
			next = tm
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		t.Fatal("no active timer to fire")
	}
	next.fired = true
	c.mu.Unlock()
	next.fn()
}

func (c *manualClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired {
			n++
		}
	}
	return n
}

func (c *manualClock) all() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*manualTimer(nil), c.timers...)
}

// scriptedDialer fails or succeeds per script entry; past the end it succeeds.
type scriptedDialer struct {
	mu     sync.Mutex
	script []error
	dials  int
	conns  []*fakeConn
	// block makes Dial wait for ctx to end.
	block   bool
	started chan struct{}
	// dead hands out connections that are already closed.
	dead bool
	// gate, when set, holds every Subscribe until it is closed.
	gate chan struct{}
}

func (d *scriptedDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.dials++
	var err error
	if len(d.script) > 0 {
		err = d.script[0]
		d.script = d.script[1:]
	}
	block := d.block
	d.mu.Unlock()

	if block {
		if d.started != nil {
			d.started <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.mu.Lock()
	c.gate = d.gate
	if d.dead {
		c.Close()
	}
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *scriptedDialer) lastConn(t *testing.T) *fakeConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		t.Fatal("no connection dialed")
	}
	return d.conns[len(d.conns)-1]
}

type fakeConn struct {
	mu         sync.Mutex
	subscribed []string
	frames     chan Frame
	closed     chan struct{}
	once       sync.Once
	gate       chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Subscribe(topic string) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return nil
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return Frame{}, errors.New("unexpected EOF")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

// recorder collects status events.
type recorder struct {
	events chan StatusEvent
}

func record(m *Manager) *recorder {
	r := &recorder{events: make(chan StatusEvent, 64)}
	m.OnStatusChange(func(ev StatusEvent) { r.events <- ev })
	return r
}

func (r *recorder) next(t *testing.T) StatusEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status event")
		return StatusEvent{}
	}
}

func (r *recorder) waitFor(t *testing.T, s Status) StatusEvent {
	t.Helper()
	for {
		ev := r.next(t)
		if ev.To == s {
			return ev
		}
	}
}

func noJitter(int64) int64 { return 0 }

func newTestManager(d Dialer, clock Clock, maxRetries int) *Manager {
	return NewManager(d, Config{
		Backoff:          Backoff{Base: 100 * time.Millisecond, Max: time.Second, Jitter: noJitter},
		MaxRetries:       maxRetries,
		HandshakeTimeout: time.Second,
		Clock:            clock,
	})
}

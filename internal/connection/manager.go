package connection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultHandshakeTimeout bounds a single handshake attempt.
const DefaultHandshakeTimeout = 10 * time.Second

// Config tunes the retry policy of a Manager.
type Config struct {
	Backoff          Backoff
	MaxRetries       int
	HandshakeTimeout time.Duration
	Clock            Clock
}

// Manager is the ConnectionManager. It owns exactly one push channel at a time.
//
// State machine:
//
//	DISCONNECTED --Connect--> CONNECTING --ok--> CONNECTED
//	CONNECTED --drop--> RECONNECTING --ok--> CONNECTED
//	RECONNECTING --fail--> RECONNECTING (retryCount++) ... --> FAILED
//	any --Disconnect--> DISCONNECTED
type Manager struct {
	dialer Dialer
	cfg    Config

	mu         sync.Mutex
	status     Status
	retryCount int
	// epoch invalidates timers, handshakes and read loops started before the
	// last Connect/Disconnect.
	epoch      uint64
	conn       Conn
	timer      Timer
	cancelDial context.CancelFunc
	subs       map[string]Handler
	pending    map[string]struct{}
	observers  []func(StatusEvent)
	// queue holds transitions in the order they happened; one goroutine at a
	// time drains it.
	queue    []StatusEvent
	flushing bool
}

// NewManager creates a disconnected Manager.
func NewManager(dialer Dialer, cfg Config) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Manager{
		dialer:  dialer,
		cfg:     cfg,
		subs:    make(map[string]Handler),
		pending: make(map[string]struct{}),
	}
}

// Connect starts the handshake. It is a no-op while a connection is live or
// being established. From FAILED or DISCONNECTED it resets the retry count.
func (m *Manager) Connect() {
	m.mu.Lock()
	switch m.status {
	case StatusConnecting, StatusConnected, StatusReconnecting:
		m.mu.Unlock()
		return
	}
	m.retryCount = 0
	m.epoch++
	m.setStatus(StatusConnecting, 0, nil)
	m.schedule(0)
	m.mu.Unlock()

	m.flush()
}

// Disconnect cancels any in-flight handshake and pending reconnect timer and
// closes the live connection. Local notification state is left untouched.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	if m.status != StatusDisconnected {
		m.setStatus(StatusDisconnected, 0, nil)
	}
	for topic := range m.subs {
		m.pending[topic] = struct{}{}
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.flush()
}

// Subscribe registers handler for topic. While not connected the topic is kept
// pending and registered on the next successful handshake. Every registered
// topic is re-subscribed after a reconnect.
func (m *Manager) Subscribe(topic string, handler Handler) error {
	if topic == "" || handler == nil {
		return errors.New("subscribe: topic and handler are required")
	}

	m.mu.Lock()
	m.subs[topic] = handler
	m.pending[topic] = struct{}{}
	conn := m.conn
	if m.status != StatusConnected || conn == nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// The write happens outside the lock; a reconnect in between replays the
	// topic anyway because it stays pending until confirmed on the live conn.
	if err := conn.Subscribe(topic); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	m.mu.Lock()
	if m.conn == conn {
		delete(m.pending, topic)
	}
	m.mu.Unlock()
	return nil
}

// OnStatusChange registers an observer invoked on every transition.
// Observers run outside the manager lock and may call back into it.
func (m *Manager) OnStatusChange(fn func(StatusEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// RetryCount returns consecutive failed handshakes since the last success.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// Pending returns topics not yet registered on a live connection, sorted.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.pending))
	for topic := range m.pending {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// attempt runs one handshake for the given epoch. Dial and SUBSCRIBE writes
// happen without m.mu held; the epoch is re-checked after each.
func (m *Manager) attempt(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	m.cancelDial = cancel
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	// Topics registered while a pass is running are picked up by the next one.
	done := make(map[string]bool)
	m.mu.Lock()
	for err == nil && epoch == m.epoch {
		todo := m.topicsExcept(done)
		if len(todo) == 0 {
			break
		}
		m.mu.Unlock()
		err = subscribeEach(conn, todo, done)
		m.mu.Lock()
	}
	cancel()

	if epoch != m.epoch {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.fail(fmt.Errorf("handshake: %w", err))
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.flush()
		return
	}

	clear(m.pending)
	m.conn = conn
	m.retryCount = 0
	m.setStatus(StatusConnected, 0, nil)
	m.mu.Unlock()

	go m.readLoop(epoch, conn)
	m.flush()
}

// readLoop pumps frames to topic handlers until the connection drops.
func (m *Manager) readLoop(epoch uint64, conn Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			m.drop(epoch, conn, err)
			return
		}

		m.mu.Lock()
		live := epoch == m.epoch && m.conn == conn
		handler := m.subs[frame.Topic]
		m.mu.Unlock()

		if !live {
			return
		}
		if handler == nil {
			log.Debug().Str("topic", frame.Topic).Msg("frame for unsubscribed topic, skipping")
			continue
		}
		dispatch(handler, frame)
	}
}

// drop handles a transport failure on a live connection.
func (m *Manager) drop(epoch uint64, conn Conn, cause error) {
	m.mu.Lock()
	if epoch != m.epoch || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	for topic := range m.subs {
		m.pending[topic] = struct{}{}
	}
	delay := m.cfg.Backoff.Delay(m.retryCount + 1)
	m.schedule(delay)
	m.setStatus(StatusReconnecting, delay, fmt.Errorf("connection dropped: %w", cause))
	m.mu.Unlock()

	_ = conn.Close()
	m.flush()
}

// --- helpers (callers hold m.mu unless noted) ---

func (m *Manager) schedule(delay time.Duration) {
	epoch := m.epoch
	m.timer = m.cfg.Clock.AfterFunc(delay, func() { m.attempt(epoch) })
}

func (m *Manager) fail(err error) {
	m.retryCount++
	if m.retryCount > m.cfg.MaxRetries {
		m.setStatus(StatusFailed, 0, err)
		return
	}
	delay := m.cfg.Backoff.Delay(m.retryCount)
	m.schedule(delay)
	m.setStatus(StatusReconnecting, delay, err)
}

// topicsExcept returns registered topics not in done, sorted.
func (m *Manager) topicsExcept(done map[string]bool) []string {
	var topics []string
	for topic := range m.subs {
		if !done[topic] {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// setStatus moves to the new state and queues the transition for flush.
func (m *Manager) setStatus(to Status, delay time.Duration, err error) {
	m.queue = append(m.queue, StatusEvent{From: m.status, To: to, RetryCount: m.retryCount, Delay: delay, Err: err})
	m.status = to
}

// flush delivers queued transitions in order. While one goroutine is
// delivering, others leave their events to it, so observers never see a
// later transition before an earlier one. Must be called without m.mu held.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.queue) > 0 {
		ev := m.queue[0]
		m.queue = m.queue[1:]
		observers := slices.Clone(m.observers)
		m.mu.Unlock()

		deliver(ev, observers)

		m.mu.Lock()
	}
	m.flushing = false
	m.mu.Unlock()
}

func deliver(ev StatusEvent, observers []func(StatusEvent)) {
	logEvent := log.Info()
	if ev.Err != nil {
		logEvent = log.Warn().Err(ev.Err)
	}
	logEvent.
		Str("from", ev.From.String()).
		Str("to", ev.To.String()).
		Int("retry_count", ev.RetryCount).
		Dur("delay", ev.Delay).
		Msg("push connection status changed")

	for _, fn := range observers {
		fn(ev)
	}
}

func subscribeEach(conn Conn, topics []string, done map[string]bool) error {
	for _, topic := range topics {
		if err := conn.Subscribe(topic); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		done[topic] = true
	}
	return nil
}

// dispatch shields the read loop from a misbehaving handler.
func dispatch(handler Handler, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("topic", frame.Topic).Interface("panic", r).Msg("frame handler panicked, frame dropped")
		}
	}()
	handler(frame)
}

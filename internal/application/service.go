// Package application wires one user session: store, push connection,
// subscription channel and read-state coordinator.
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/readstate"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/store"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/subscription"
)

// DefaultTopic is the per-user queue the backend pushes to.
const DefaultTopic = "/user/queue/notifications"

const defaultBaselineTimeout = 10 * time.Second

// Options configures a Service.
type Options struct {
	// Topic template; {user} is replaced by the session user id.
	Topic           string
	Connection      connection.Config
	Reporter        subscription.Reporter
	BaselineTimeout time.Duration
}

// Service holds the notification use-cases of one session.
type Service struct {
	session     *domain.Session
	backend     domain.Backend
	store       *store.Store
	manager     *connection.Manager
	channel     *subscription.Channel
	coordinator *readstate.Coordinator
	baselineTTL time.Duration

	mu      sync.Mutex
	started bool
	// gen invalidates baseline merges that started before the last Logout.
	gen    uint64
	cancel context.CancelFunc

	unreadMu        sync.RWMutex
	unreadObservers []func(int)
}

// NewService creates a Service for session. Nothing runs until Start.
func NewService(session *domain.Session, dialer connection.Dialer, backend domain.Backend, opts Options) *Service {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.BaselineTimeout <= 0 {
		opts.BaselineTimeout = defaultBaselineTimeout
	}

	st := store.New()
	s := &Service{
		session:     session,
		backend:     backend,
		store:       st,
		manager:     connection.NewManager(dialer, opts.Connection),
		coordinator: readstate.New(st, backend),
		baselineTTL: opts.BaselineTimeout,
	}
	s.channel = subscription.New(subscription.TopicFor(opts.Topic, session.UserID), sessionIngester{s}, opts.Reporter)

	// Subscribe registers the topic as pending; it is sent on every handshake.
	if err := s.channel.Attach(s.manager); err != nil {
		log.Error().Err(err).Msg("attach subscription channel")
	}
	s.channel.OnChange(s.publishUnread)
	s.manager.OnStatusChange(s.onStatus)
	return s
}

// Session returns the session this service serves.
func (s *Service) Session() *domain.Session {
	return s.session
}

// Topic returns the expanded push topic.
func (s *Service) Topic() string {
	return s.channel.Topic()
}

// Start opens the push channel and merges the REST baseline. A baseline
// failure is returned but the push channel keeps running; the baseline is
// fetched again after every reconnect.
func (s *Service) Start(ctx context.Context) error {
	if s.session.Expired(time.Now()) {
		return fmt.Errorf("start session: %w", domain.ErrUnauthorized)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen := s.gen
	s.mu.Unlock()

	log.Info().
		Str("session", s.session.ID).
		Str("user", s.session.UserID).
		Str("topic", s.channel.Topic()).
		Msg("notification session starting")

	s.manager.Connect()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(runCtx, stop)()
	return s.refreshBaseline(ctx, gen)
}

// Logout disconnects the push channel and clears local state. Both are
// complete when it returns.
func (s *Service) Logout() {
	s.mu.Lock()
	s.gen++
	s.started = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.manager.Disconnect()
	s.store.Clear()

	s.publishUnread()
	log.Info().Str("session", s.session.ID).Msg("notification session ended")
}

// Snapshot returns a copy of the current notification list.
func (s *Service) Snapshot() domain.Snapshot {
	return s.store.Snapshot()
}

// CountUnread returns the derived unread count.
func (s *Service) CountUnread() int {
	return s.store.UnreadCount()
}

// Status returns the push connection status.
func (s *Service) Status() connection.Status {
	return s.manager.Status()
}

// RetryCount returns consecutive failed handshakes.
func (s *Service) RetryCount() int {
	return s.manager.RetryCount()
}

// MarkRead marks one notification read optimistically.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	defer s.publishUnread()
	return s.coordinator.MarkAsRead(ctx, id)
}

// MarkAllRead marks every unread notification read optimistically.
func (s *Service) MarkAllRead(ctx context.Context) (int, error) {
	defer s.publishUnread()
	return s.coordinator.MarkAllAsRead(ctx)
}

// Delete removes a notification once the backend confirms. Unlike read
// state it is not optimistic: the record stays visible until confirmed.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, ok := s.store.Get(id); !ok {
		return fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if s.store.Remove(id) {
		s.publishUnread()
	}
	log.Debug().Str("id", id).Msg("notification deleted")
	return nil
}

// OnArrival registers a listener for newly arrived notifications.
func (s *Service) OnArrival(fn subscription.ArrivalFunc) {
	s.channel.OnArrival(fn)
}

// OnStatusChange registers a listener for connection transitions.
func (s *Service) OnStatusChange(fn func(connection.StatusEvent)) {
	s.manager.OnStatusChange(fn)
}

// OnRollback registers a listener for read-state rollbacks.
func (s *Service) OnRollback(fn readstate.RollbackObserver) {
	s.coordinator.OnRollback(fn)
}

// OnUnreadChange registers a listener for the unread count after changes.
func (s *Service) OnUnreadChange(fn func(int)) {
	s.unreadMu.Lock()
	defer s.unreadMu.Unlock()
	s.unreadObservers = append(s.unreadObservers, fn)
}

func (s *Service) onStatus(ev connection.StatusEvent) {
	if ev.From != connection.StatusReconnecting || ev.To != connection.StatusConnected {
		return
	}

	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	s.mu.Unlock()

	// Pushes sent during the outage were lost; the baseline recovers them.
	go func() {
		if err := s.refreshBaseline(context.Background(), gen); err != nil {
			log.Warn().Err(err).Msg("baseline refresh after reconnect failed")
		}
	}()
}

// refreshBaseline fetches unread notifications and replaces the unread view
// with them, unless a Logout happened since gen was read. Records pushed
// while the request was in flight survive the replace.
func (s *Service) refreshBaseline(ctx context.Context, gen uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.baselineTTL)
	defer cancel()

	mark := s.store.BeginFetch()
	list, err := s.backend.FetchUnread(ctx)
	if err != nil {
		return fmt.Errorf("fetch baseline: %w", err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.Debug().Msg("baseline discarded, session ended")
		return nil
	}
	dropped := s.store.Replace(list, mark)
	s.mu.Unlock()

	log.Info().
		Int("fetched", len(list)).
		Int("dropped", dropped).
		Int("unread", s.store.UnreadCount()).
		Msg("baseline merged")
	s.publishUnread()
	return nil
}

// sessionIngester admits pushes only while the session is started, so a frame
// read just before Logout cannot land in the cleared store.
type sessionIngester struct {
	s *Service
}

func (g sessionIngester) Ingest(n domain.Notification) (inserted, changed bool) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if !g.s.started {
		log.Debug().Str("id", n.ID).Msg("push after logout ignored")
		return false, false
	}
	return g.s.store.Ingest(n)
}

func (s *Service) publishUnread() {
	s.unreadMu.RLock()
	observers := s.unreadObservers
	s.unreadMu.RUnlock()
	if len(observers) == 0 {
		return
	}
	n := s.store.UnreadCount()
	for _, fn := range observers {
		fn(n)
	}
}

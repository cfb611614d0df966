// Package subscription turns inbound push frames into notifications and feeds
// them to the store. It never lets a bad frame reach the transport.
package subscription

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// UserPlaceholder is replaced by the session user id in topic templates.
const UserPlaceholder = "{user}"

// Ingester is the store entry point used for pushes. inserted reports a new
// id; changed reports that a redelivery moved a held record's read state.
type Ingester interface {
	Ingest(n domain.Notification) (inserted, changed bool)
}

// Reporter receives dropped frames for observability.
type Reporter interface {
	DecodeFailed(topic string, err error)
	Misrouted(expected, got string)
}

// ArrivalFunc is invoked once per newly seen notification id.
type ArrivalFunc func(n domain.Notification)

// Channel is the SubscriptionChannel for one user topic.
type Channel struct {
	topic    string
	store    Ingester
	reporter Reporter

	mu       sync.RWMutex
	arrivals []ArrivalFunc
	changes  []func()
}

// TopicFor expands a topic template for the given user.
func TopicFor(template, userID string) string {
	return strings.ReplaceAll(template, UserPlaceholder, userID)
}

// New creates a Channel bound to topic.
func New(topic string, store Ingester, reporter Reporter) *Channel {
	return &Channel{topic: topic, store: store, reporter: reporter}
}

// Topic returns the topic this channel accepts.
func (c *Channel) Topic() string {
	return c.topic
}

// OnArrival registers a listener for newly arrived notifications.
func (c *Channel) OnArrival(fn ArrivalFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrivals = append(c.arrivals, fn)
}

// OnChange registers a listener called whenever a push altered the store,
// either by adding a record or by moving the read state of one already held.
func (c *Channel) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, fn)
}

// Attach subscribes the channel on the connection manager.
func (c *Channel) Attach(m *connection.Manager) error {
	return m.Subscribe(c.topic, c.OnMessage)
}

// OnMessage handles one inbound frame. Frames for other topics and frames
// that fail to decode are dropped and reported.
func (c *Channel) OnMessage(frame connection.Frame) {
	if frame.Topic != c.topic {
		log.Warn().Str("expected", c.topic).Str("got", frame.Topic).Msg("misrouted frame dropped")
		if c.reporter != nil {
			c.reporter.Misrouted(c.topic, frame.Topic)
		}
		return
	}

	n, err := Decode(frame.Body)
	if err != nil {
		log.Warn().Err(err).Str("topic", frame.Topic).Int("bytes", len(frame.Body)).Msg("push frame dropped")
		if c.reporter != nil {
			c.reporter.DecodeFailed(frame.Topic, err)
		}
		return
	}

	inserted, changed := c.store.Ingest(n)
	if !inserted && !changed {
		log.Debug().Str("id", n.ID).Msg("duplicate push delivery")
		return
	}

	c.mu.RLock()
	arrivals, changes := c.arrivals, c.changes
	c.mu.RUnlock()

	if inserted {
		log.Info().Str("id", n.ID).Str("title", n.Title).Msg("notification arrived")
		for _, fn := range arrivals {
			fn(n.Clone())
		}
	} else {
		log.Debug().Str("id", n.ID).Msg("redelivery updated read state")
	}
	for _, fn := range changes {
		fn()
	}
}

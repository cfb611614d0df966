// Package kafka republishes notification arrivals to a Kafka topic so other
// local consumers can react without holding their own push connection.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// EventArrived is the eventType of arrival envelopes.
const EventArrived = "notification.arrived"

// EventEnvelope is the common wrapper for published events.
type EventEnvelope struct {
	EventType  string          `json:"eventType"`
	EventID    string          `json:"eventId"`
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewArrivalEnvelope wraps n for publication. The notification id doubles
// as the event id so consumers can deduplicate.
func NewArrivalEnvelope(session *domain.Session, n domain.Notification, now time.Time) (*EventEnvelope, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	env := &EventEnvelope{
		EventType:  EventArrived,
		EventID:    n.ID,
		OccurredAt: now.UTC(),
		Payload:    payload,
	}
	if session != nil {
		env.UserID = session.UserID
		env.SessionID = session.ID
	}
	return env, nil
}

// Publisher wraps the franz-go client in producer mode.
type Publisher struct {
	client  *kgo.Client
	session *domain.Session
	topic   string
}

// New creates a Publisher producing to topic on brokers.
func New(brokers []string, topic string, session *domain.Session) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("money-tracker-notifier"),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, session: session, topic: topic}, nil
}

// Publish produces one arrival asynchronously, keyed by user id so a user's
// arrivals stay ordered within a partition. It satisfies subscription.ArrivalFunc.
func (p *Publisher) Publish(n domain.Notification) {
	rec, err := p.arrivalRecord(n, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("kafka: build arrival record")
		return
	}

	p.client.Produce(context.Background(), rec, func(r *kgo.Record, err error) {
		if err != nil {
			log.Error().Err(err).Str("topic", p.topic).Str("id", n.ID).Msg("kafka produce failed")
			return
		}
		log.Debug().
			Str("topic", r.Topic).
			Int32("partition", r.Partition).
			Int64("offset", r.Offset).
			Str("id", n.ID).
			Msg("arrival published")
	})
}

func (p *Publisher) arrivalRecord(n domain.Notification, now time.Time) (*kgo.Record, error) {
	env, err := NewArrivalEnvelope(p.session, n, now)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", n.ID, err)
	}
	return &kgo.Record{Key: []byte(env.UserID), Value: value}, nil
}

// Close flushes buffered records, bounded by ctx, then closes the client.
func (p *Publisher) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("kafka flush incomplete")
	}
	p.client.Close()
	log.Info().Msg("kafka publisher stopped")
}

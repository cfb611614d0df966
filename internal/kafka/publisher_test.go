package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

func TestArrivalRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &Publisher{session: &domain.Session{ID: "s-1", UserID: "u-9"}, topic: "notifications"}
	n := domain.Notification{ID: "42", Title: "Budget alert", Message: "Food at 80%", CreatedAt: now}

	rec, err := p.arrivalRecord(n, now)
	if err != nil {
		t.Fatalf("arrivalRecord: %v", err)
	}
	if string(rec.Key) != "u-9" {
		t.Fatalf("key = %q, want user id", rec.Key)
	}

	var got EventEnvelope
	if err := json.Unmarshal(rec.Value, &got); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if got.EventType != EventArrived || got.EventID != "42" || got.UserID != "u-9" || got.SessionID != "s-1" {
		t.Fatalf("envelope = %+v", got)
	}
	if !got.OccurredAt.Equal(now) {
		t.Fatalf("occurredAt = %v", got.OccurredAt)
	}

	var payload domain.Notification
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ID != "42" || payload.Title != "Budget alert" || payload.ReadAt != nil {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestArrivalEnvelopeWithoutSession(t *testing.T) {
	env, err := NewArrivalEnvelope(nil, domain.Notification{ID: "1"}, time.Now())
	if err != nil {
		t.Fatalf("NewArrivalEnvelope: %v", err)
	}
	if env.UserID != "" || env.SessionID != "" {
		t.Fatalf("envelope = %+v", env)
	}
}

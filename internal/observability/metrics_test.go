package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
)

func TestObserveStatus(t *testing.T) {
	m := NewMetrics()

	m.ObserveStatus(connection.StatusEvent{From: connection.StatusDisconnected, To: connection.StatusConnecting})
	m.ObserveStatus(connection.StatusEvent{From: connection.StatusConnecting, To: connection.StatusReconnecting, RetryCount: 1, Err: errors.New("refused")})
	m.ObserveStatus(connection.StatusEvent{From: connection.StatusReconnecting, To: connection.StatusConnected})
	m.ObserveStatus(connection.StatusEvent{From: connection.StatusConnected, To: connection.StatusReconnecting, Err: errors.New("dropped")})

	if got := testutil.ToFloat64(m.handshakeFailures); got != 1 {
		t.Fatalf("handshake failures = %v, want 1 (drops are not handshake failures)", got)
	}
	if got := testutil.ToFloat64(m.status.WithLabelValues("RECONNECTING")); got != 1 {
		t.Fatalf("RECONNECTING gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.status.WithLabelValues("CONNECTED")); got != 0 {
		t.Fatalf("CONNECTED gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("RECONNECTING")); got != 2 {
		t.Fatalf("transitions to RECONNECTING = %v", got)
	}
}

func TestReporterAndRollbacks(t *testing.T) {
	m := NewMetrics()
	m.DecodeFailed("/user/queue/notifications", errors.New("bad"))
	m.DecodeFailed("/user/queue/notifications", errors.New("bad"))
	m.Misrouted("/a", "/b")
	m.Rollback("mark_read", 1)
	m.SetUnread(4)

	if got := testutil.ToFloat64(m.decodeFailures.WithLabelValues("/user/queue/notifications")); got != 2 {
		t.Fatalf("decode failures = %v", got)
	}
	if got := testutil.ToFloat64(m.misrouted); got != 1 {
		t.Fatalf("misrouted = %v", got)
	}
	if got := testutil.ToFloat64(m.rollbacks.WithLabelValues("mark_read")); got != 1 {
		t.Fatalf("rollbacks = %v", got)
	}
	if got := testutil.ToFloat64(m.unread); got != 4 {
		t.Fatalf("unread = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.SetUnread(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "notifier_notifications_unread 2") {
		t.Fatalf("unread gauge missing from exposition")
	}
}

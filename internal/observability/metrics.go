// Package observability exposes Prometheus metrics for the sync engine and
// adapts them to the collaborator interfaces of the other packages.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

const namespace = "notifier"

var allStatuses = []connection.Status{
	connection.StatusDisconnected,
	connection.StatusConnecting,
	connection.StatusConnected,
	connection.StatusReconnecting,
	connection.StatusFailed,
}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	decodeFailures    *prometheus.CounterVec
	misrouted         prometheus.Counter
	arrivals          prometheus.Counter
	transitions       *prometheus.CounterVec
	handshakeFailures prometheus.Counter
	status            *prometheus.GaugeVec
	retryCount        prometheus.Gauge
	unread            prometheus.Gauge
	rollbacks         *prometheus.CounterVec
}

// NewMetrics registers all collectors, plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_decode_failures_total",
			Help:      "Push frames dropped because they could not be decoded.",
		}, []string{"topic"}),
		misrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_misrouted_total",
			Help:      "Push frames dropped because they arrived on another topic.",
		}),
		arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_arrived_total",
			Help:      "Newly seen notifications delivered by push.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Connection status transitions by target status.",
		}, []string{"to"}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_handshake_failures_total",
			Help:      "Failed push channel handshakes.",
		}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current connection status, 0 otherwise.",
		}, []string{"status"}),
		retryCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_retry_count",
			Help:      "Consecutive failed handshakes since the last success.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_unread",
			Help:      "Unread notifications in the local store.",
		}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_state_rollbacks_total",
			Help:      "Optimistic read-state changes rolled back after backend rejection.",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decodeFailures,
		m.misrouted,
		m.arrivals,
		m.transitions,
		m.handshakeFailures,
		m.status,
		m.retryCount,
		m.unread,
		m.rollbacks,
	)
	m.setStatus(connection.StatusDisconnected)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// DecodeFailed implements subscription.Reporter.
func (m *Metrics) DecodeFailed(topic string, _ error) {
	m.decodeFailures.WithLabelValues(topic).Inc()
}

// Misrouted implements subscription.Reporter.
func (m *Metrics) Misrouted(_, _ string) {
	m.misrouted.Inc()
}

// Arrived counts one new notification.
func (m *Metrics) Arrived(domain.Notification) {
	m.arrivals.Inc()
}

// ObserveStatus records a connection transition.
func (m *Metrics) ObserveStatus(ev connection.StatusEvent) {
	m.transitions.WithLabelValues(ev.To.String()).Inc()
	if ev.Err != nil && (ev.To == connection.StatusReconnecting || ev.To == connection.StatusFailed) && ev.From != connection.StatusConnected {
		m.handshakeFailures.Inc()
	}
	m.retryCount.Set(float64(ev.RetryCount))
	m.setStatus(ev.To)
}

// Rollback implements readstate.RollbackObserver.
func (m *Metrics) Rollback(op string, _ int) {
	m.rollbacks.WithLabelValues(op).Inc()
}

// SetUnread publishes the current unread count.
func (m *Metrics) SetUnread(n int) {
	m.unread.Set(float64(n))
}

func (m *Metrics) setStatus(current connection.Status) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.status.WithLabelValues(s.String()).Set(v)
	}
}

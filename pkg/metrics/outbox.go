package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the relay of outbox events to the broker.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	terminal  *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events delivered to the broker.",
		}, []string{"event_type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Retryable outbox publish failures.",
		}, []string{"event_type"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_terminal_total",
			Help: "Outbox events abandoned after max attempts.",
		}, []string{"event_type"}),
	}
	reg.MustRegister(m.published, m.failed, m.terminal)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncTerminal(eventType string) {
	if m == nil || m.terminal == nil {
		return
	}
	m.terminal.WithLabelValues(normalizeLabel(eventType)).Inc()
}

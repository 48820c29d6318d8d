package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound webhook events by source and outcome.
type WebhookMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook events by source and outcome.",
	}, []string{"source", "outcome"})
	reg.MustRegister(outcomes)
	return &WebhookMetrics{outcomes: outcomes}
}

// IncOutcome counts one event for source with the given outcome.
func (w *WebhookMetrics) IncOutcome(source, outcome string) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

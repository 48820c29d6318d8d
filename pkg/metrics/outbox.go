package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the relay from outbox rows to Pub/Sub topics.
type OutboxMetrics struct {
	publishes *prometheus.CounterVec
	backlog   prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox publish attempts by topic and outcome.",
	}, []string{"topic", "outcome"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog_rows",
		Help: "Unpublished outbox rows still eligible for publishing.",
	})
	reg.MustRegister(publishes, backlog)
	return &OutboxMetrics{publishes: publishes, backlog: backlog}
}

func (o *OutboxMetrics) IncPublish(topic, outcome string) {
	if o == nil || o.publishes == nil {
		return
	}
	if topic == "" {
		topic = "unresolved"
	}
	o.publishes.WithLabelValues(topic, normalizeLabel(outcome)).Inc()
}

func (o *OutboxMetrics) SetBacklog(rows int64) {
	if o == nil || o.backlog == nil {
		return
	}
	o.backlog.Set(float64(rows))
}

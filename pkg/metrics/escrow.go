package metrics

import "github.com/prometheus/client_golang/prometheus"

// EscrowMetrics counts auto-release decisions made by the cron worker.
type EscrowMetrics struct {
	autoRelease *prometheus.CounterVec
}

func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	autoRelease := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_auto_release_total",
		Help: "Escrow auto-release attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(autoRelease)
	return &EscrowMetrics{autoRelease: autoRelease}
}

func (e *EscrowMetrics) IncAutoRelease(outcome string) {
	if e == nil || e.autoRelease == nil {
		return
	}
	e.autoRelease.WithLabelValues(normalizeLabel(outcome)).Inc()
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service counters. State writes have no retry policy,
// so the failure counter is the main signal that a host needs to re-issue
// an action.
type Metrics struct {
	StageTransitions *prometheus.CounterVec
	WriteFailures    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybergenesis_stage_transitions_total",
			Help: "Session status transitions issued by the stage controller.",
		}, []string{"to_status"}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybergenesis_state_write_failures_total",
			Help: "Failed writes against the shared state store.",
		}, []string{"table"}),
	}

	reg.MustRegister(m.StageTransitions, m.WriteFailures)
	return m
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) WriteFailed(table string) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(table).Inc()
}

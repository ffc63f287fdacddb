package brigade

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricTransitionsTotal    = "brigade_transitions_total"
	MetricGuardFailuresTotal  = "brigade_guard_failures_total"
	MetricInvitationResponses = "brigade_invitation_responses_total"
)

// Metrics contains Prometheus metrics for brigade lifecycle operations.
// All operations are thread-safe. A nil *Metrics is a no-op.
type Metrics struct {
	transitions         *prometheus.CounterVec
	guardFailures       *prometheus.CounterVec
	invitationResponses *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTransitionsTotal,
				Help: "Total number of brigade state transitions by from/to state",
			},
			[]string{"from", "to"},
		),
		guardFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGuardFailuresTotal,
				Help: "Total number of rejected transitions by unmet guard",
			},
			[]string{"guard"},
		),
		invitationResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricInvitationResponses,
				Help: "Total number of invitation responses by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.transitions, m.guardFailures, m.invitationResponses} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransition increments the transition counter.
func (m *Metrics) RecordTransition(from, to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordGuardFailure increments the guard-failure counter.
func (m *Metrics) RecordGuardFailure(guard string) {
	if m == nil {
		return
	}
	m.guardFailures.WithLabelValues(guard).Inc()
}

// RecordResponse increments the invitation-response counter.
func (m *Metrics) RecordResponse(outcome InvitationState) {
	if m == nil {
		return
	}
	m.invitationResponses.WithLabelValues(string(outcome)).Inc()
}

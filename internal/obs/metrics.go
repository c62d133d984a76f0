package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the prometheus collectors shared across components.
// None of these back a spec invariant; they are carried because the
// ambient stack always wires a metrics registry alongside a long-running
// service, per SPEC_FULL.md §2A.
type Metrics struct {
	PoolTransitions  *prometheus.CounterVec
	RouterOutcomes   *prometheus.CounterVec
	SessionDurations *prometheus.HistogramVec
}

// NewMetrics registers the gateway's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_credential_pool_transitions_total",
			Help: "Credential state transitions by provider and target state.",
		}, []string{"provider", "state"}),
		RouterOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_router_outcomes_total",
			Help: "Router outcomes by alias and result.",
		}, []string{"alias", "outcome"}),
		SessionDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_reasoning_session_duration_seconds",
			Help:    "Wall-clock duration of reasoning sessions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.PoolTransitions, m.RouterOutcomes, m.SessionDurations)
	return m
}

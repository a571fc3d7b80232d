// Package metrics holds the Prometheus collectors for the group order engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector the engine reports to.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	TransitionConflicts prometheus.Counter
	Contributions       *prometheus.CounterVec
	ContributedAmount   prometheus.Counter
	SweepActions        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grouporder_transitions_total",
			Help: "Applied group order status transitions.",
		}, []string{"from", "to"}),
		TransitionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grouporder_transition_conflicts_total",
			Help: "Status compare-and-set attempts lost to a concurrent writer.",
		}),
		Contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grouporder_contributions_total",
			Help: "Budget contribution calls by result.",
		}, []string{"result"}),
		ContributedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grouporder_contributed_minor_units_total",
			Help: "Sum of newly recorded contributions in minor currency units.",
		}),
		SweepActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grouporder_sweep_actions_total",
			Help: "Group orders changed by the background sweep, by action.",
		}, []string{"action"}),
	}

	if reg != nil {
		reg.MustRegister(m.Transitions, m.TransitionConflicts, m.Contributions, m.ContributedAmount, m.SweepActions)
	}
	return m
}

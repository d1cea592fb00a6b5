package bayesglm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	mapEM   = "em"
	mapInit = "init"
)

// Metrics counts the expensive operations of an estimation. A nil *Metrics
// records nothing.
type Metrics struct {
	evaluations           *prometheus.CounterVec
	factorizations        prometheus.Counter
	factorizationFailures prometheus.Counter
	brentEvaluations      prometheus.Counter
	runs                  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spdeem_fixed_point_evaluations_total",
			Help: "Fixed-point map evaluations, by map",
		}, []string{"map"}),
		factorizations: f.NewCounter(prometheus.CounterOpts{
			Name: "spdeem_posterior_factorizations_total",
			Help: "Numeric factorizations of the posterior precision",
		}),
		factorizationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "spdeem_factorization_failures_total",
			Help: "Factorizations that found a non-positive pivot",
		}),
		brentEvaluations: f.NewCounter(prometheus.CounterOpts{
			Name: "spdeem_kappa2_objective_evaluations_total",
			Help: "Evaluations of the kappa2 objectives",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spdeem_runs_total",
			Help: "Accelerated runs, by map and outcome",
		}, []string{"map", "outcome"}),
	}
}

func (m *Metrics) evaluated(name string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(name).Inc()
}

func (m *Metrics) factorized(err error) {
	if m == nil {
		return
	}
	m.factorizations.Inc()
	if err != nil {
		m.factorizationFailures.Inc()
	}
}

func (m *Metrics) objectiveEvaluated() {
	if m == nil {
		return
	}
	m.brentEvaluations.Inc()
}

func (m *Metrics) finished(name string, converged bool, err error) {
	if m == nil {
		return
	}
	outcome := "converged"
	switch {
	case err != nil:
		outcome = "failed"
	case !converged:
		outcome = "exhausted"
	}
	m.runs.WithLabelValues(name, outcome).Inc()
}

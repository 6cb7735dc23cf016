package fraud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the scoring engine.
type Metrics struct {
	CheckDuration *prometheus.HistogramVec
	Decisions     *prometheus.CounterVec
	RuleTriggers  *prometheus.CounterVec
	RuleTimeouts  *prometheus.CounterVec
	RuleErrors    *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics. A nil registerer uses
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fraud_check_duration_seconds",
				Help:    "Wall-clock duration of full fraud checks",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1.0},
			},
			[]string{"decision"},
		),
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_decisions_total",
				Help: "Fraud decisions by tier",
			},
			[]string{"decision"},
		),
		RuleTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_rule_triggers_total",
				Help: "Rule trigger counts",
			},
			[]string{"rule"},
		),
		RuleTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_rule_timeouts_total",
				Help: "Rules that missed the scoring deadline",
			},
			[]string{"rule"},
		),
		RuleErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_rule_errors_total",
				Help: "Rules that failed on infrastructure errors (fail-open)",
			},
			[]string{"rule"},
		),
	}
}

package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "power_scheduler"

// Metrics holds the Prometheus collectors for evaluation passes
type Metrics struct {
	runs             prometheus.Counter
	runDuration      prometheus.Histogram
	evaluations      *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	invalidSchedules *prometheus.CounterVec
	listerErrors     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of completed evaluation passes.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of evaluation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Schedule evaluations by resulting target.",
		}, []string{"target"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Attempted power transitions.",
		}, []string{"provider", "target", "result"}),
		invalidSchedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_schedules_total",
			Help:      "Resources skipped because their schedule could not be parsed.",
		}, []string{"provider"}),
		listerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lister_errors_total",
			Help:      "Failed resource listings.",
		}, []string{"provider"}),
	}

	collectors := []prometheus.Collector{
		m.runs,
		m.runDuration,
		m.evaluations,
		m.transitions,
		m.invalidSchedules,
		m.listerErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveRun records a finished pass
func (m *Metrics) ObserveRun(d time.Duration) {
	m.runs.Inc()
	m.runDuration.Observe(d.Seconds())
}

// ObserveEvaluation records the target a schedule evaluated to
func (m *Metrics) ObserveEvaluation(target string) {
	m.evaluations.WithLabelValues(target).Inc()
}

// ObserveTransition records an attempted transition and its result
func (m *Metrics) ObserveTransition(provider, target, result string) {
	m.transitions.WithLabelValues(provider, target, result).Inc()
}

// ObserveInvalidSchedule records a resource skipped for a malformed schedule
func (m *Metrics) ObserveInvalidSchedule(provider string) {
	m.invalidSchedules.WithLabelValues(provider).Inc()
}

// ObserveListerError records a failed listing
func (m *Metrics) ObserveListerError(provider string) {
	m.listerErrors.WithLabelValues(provider).Inc()
}

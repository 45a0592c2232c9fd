// Package metrics exposes prometheus instruments for limit enforcement.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures enforcement health signals: evaluation outcomes, state
// transitions, DB lock contention and callback failures.
type Metrics struct {
	evaluations     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	usageIncrements *prometheus.CounterVec
	callbackErrors  *prometheus.CounterVec
	lockWait        prometheus.Histogram
	lockRetries     prometheus.Counter
}

// New registers and returns the enforcement metrics. Pass a fresh registry
// in tests; nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planfence_evaluations_total",
		Help: "Limit evaluations by limit key and resulting state.",
	}, []string{"limit_key", "state"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planfence_state_transitions_total",
		Help: "Enforcement state transitions by limit key and event.",
	}, []string{"limit_key", "event"})

	usageIncrements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planfence_usage_increments_total",
		Help: "Per-period usage counter increments by limit key.",
	}, []string{"limit_key"})

	callbackErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planfence_callback_errors_total",
		Help: "Lifecycle callback handler failures by event type.",
	}, []string{"event"})

	// Measures lock wait time to detect contention on enforcement rows.
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planfence_db_lock_wait_seconds",
		Help:    "Time spent acquiring enforcement state row locks.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	lockRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planfence_lock_retries_total",
		Help: "Retries after lock timeouts or deadlocks on state mutation.",
	})

	reg.MustRegister(evaluations, transitions, usageIncrements, callbackErrors, lockWait, lockRetries)

	return &Metrics{
		evaluations:     evaluations,
		transitions:     transitions,
		usageIncrements: usageIncrements,
		callbackErrors:  callbackErrors,
		lockWait:        lockWait,
		lockRetries:     lockRetries,
	}
}

func (m *Metrics) IncEvaluation(limitKey, state string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(limitKey, state).Inc()
}

func (m *Metrics) IncTransition(limitKey, event string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(limitKey, event).Inc()
}

func (m *Metrics) IncUsageIncrement(limitKey string) {
	if m == nil {
		return
	}
	m.usageIncrements.WithLabelValues(limitKey).Inc()
}

func (m *Metrics) IncCallbackError(eventType string) {
	if m == nil {
		return
	}
	m.callbackErrors.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) IncLockRetry() {
	if m == nil {
		return
	}
	m.lockRetries.Inc()
}

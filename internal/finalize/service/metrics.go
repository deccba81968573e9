package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK       = "ok"
	resultSkipped  = "skipped"
	resultConflict = "conflict"
	resultError    = "error"
)

// Metrics holds the finalizer's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	recomputeTotal    *prometheus.CounterVec
	conflictRetries   prometheus.Counter
	recomputeDuration *prometheus.HistogramVec
	winnerChanges     *prometheus.CounterVec
	reselectOwners    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		recomputeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalize_recompute_total",
				Help: "Recomputation units of work by scope and result.",
			},
			[]string{"scope", "result"},
		),
		conflictRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finalize_conflict_retries_total",
				Help: "Transactions retried after a serialization conflict.",
			},
		),
		recomputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finalize_recompute_duration_seconds",
				Help:    "Wall time of a recomputation unit of work including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		winnerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalize_winner_changes_total",
				Help: "Committed recomputations that moved a final flag.",
			},
			[]string{"flag"},
		),
		reselectOwners: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalize_reselect_owners_total",
				Help: "Owners processed by contest problem reselection jobs.",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeRecompute(scope, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.recomputeTotal.WithLabelValues(scope, result).Inc()
	m.recomputeDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

func (m *Metrics) conflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

func (m *Metrics) winnerChanged(flag string) {
	if m == nil {
		return
	}
	m.winnerChanges.WithLabelValues(flag).Inc()
}

func (m *Metrics) reselectOwner(result string) {
	if m == nil {
		return
	}
	m.reselectOwners.WithLabelValues(result).Inc()
}

// Package metrics exposes Prometheus collectors for sync passes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Update outcomes.
const (
	OutcomeSkipped = "skipped"
	OutcomeSaved   = "saved"
	OutcomeRemoved = "removed"
	OutcomeFailed  = "failed"
)

// Metrics groups the sync collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	updates  *prometheus.CounterVec
	duration prometheus.Histogram
	worklist prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notesync",
			Name:      "runs_total",
			Help:      "Sync passes by result.",
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notesync",
			Name:      "updates_total",
			Help:      "Per-note update operations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notesync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a sync pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		worklist: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notesync",
			Name:      "worklist_size",
			Help:      "Number of update tasks in the last sync pass.",
		}),
	}
	reg.MustRegister(m.runs, m.updates, m.duration, m.worklist)
	return m
}

// ObserveRun records the result and duration of one pass.
func (m *Metrics) ObserveRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
}

// ObserveUpdate counts one update outcome.
func (m *Metrics) ObserveUpdate(outcome string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
}

// SetWorklist records the size of the current worklist.
func (m *Metrics) SetWorklist(n int) {
	if m == nil {
		return
	}
	m.worklist.Set(float64(n))
}

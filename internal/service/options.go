// Package service implements the note reconciliation engine.
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/and161185/note-sync/internal/metrics"
)

// Policy selects how Sync completes after a failed update.
type Policy int

const (
	// ReportFirst returns the first update error and leaves the other updates running.
	ReportFirst Policy = iota
	// CancelOnError cancels the other updates on the first error and waits for them.
	CancelOnError
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "report-first":
		return ReportFirst, true
	case "cancel-on-error":
		return CancelOnError, true
	}
	return ReportFirst, false
}

func (p Policy) String() string {
	if p == CancelOnError {
		return "cancel-on-error"
	}
	return "report-first"
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithPolicy sets the completion policy.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithOpTimeout bounds each per-note update. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.opTimeout = d }
}

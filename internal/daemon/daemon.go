// Package daemon runs sync passes on a fixed interval.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Syncer runs one sync pass.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Report receives the outcome of every pass. It may be nil.
type Report func(err error)

// Run syncs once immediately and then every interval until ctx is cancelled.
// A failed pass is logged and reported; the loop keeps going.
// A pass that is running when ctx is cancelled is not interrupted by Run itself,
// but it observes the same ctx.
func Run(ctx context.Context, s Syncer, interval time.Duration, log *zap.Logger, report Report) error {
	if log == nil {
		log = zap.NewNop()
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	pass := func() {
		err := s.Sync(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("sync pass failed", zap.Error(err))
		}
		if report != nil {
			report(err)
		}
	}

	log.Info("daemon started", zap.Duration("interval", interval))
	pass()
	for {
		select {
		case <-ctx.Done():
			log.Info("daemon stopped")
			return ctx.Err()
		case <-t.C:
			pass()
		}
	}
}

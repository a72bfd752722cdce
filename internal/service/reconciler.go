package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/metrics"
	"github.com/and161185/note-sync/internal/model"
	"github.com/and161185/note-sync/internal/repository"
)

// Reconciler pulls remote notes carrying a tag into the local store.
// A Reconciler is immutable after construction and safe for concurrent use.
type Reconciler struct {
	remote    repository.RemoteStore
	local     repository.LocalStore
	tag       string
	log       *zap.Logger
	metrics   *metrics.Metrics
	policy    Policy
	opTimeout time.Duration
}

// NewReconciler constructs a Reconciler for the given stores and sync tag.
func NewReconciler(remote repository.RemoteStore, local repository.LocalStore, tag string, opts ...Option) *Reconciler {
	r := &Reconciler{
		remote: remote,
		local:  local,
		tag:    tag,
		log:    zap.NewNop(),
		policy: ReportFirst,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Tag returns the sync tag.
func (r *Reconciler) Tag() string { return r.tag }

// task is one worklist entry. fresh marks a handle minted for a remote-only note.
type task struct {
	handle repository.LocalHandle
	fresh  bool
}

type result struct {
	idx int
	err error
}

// Sync runs one reconciliation pass.
//
// Local notes are enumerated first; a failure there aborts before any remote call.
// Remote notes are enumerated next; a failure there aborts before any update runs.
// Every worklist entry is then resolved in its own goroutine.
//
// Under ReportFirst, Sync returns as soon as one update fails. The other updates keep
// running with ctx, so cancelling ctx after Sync returns also aborts them.
// Under CancelOnError, the first failure cancels the rest and Sync waits for all of them.
func (r *Reconciler) Sync(ctx context.Context) (err error) {
	runID := uuid.Must(uuid.NewV4())
	log := r.log.With(zap.String("run_id", runID.String()), zap.String("tag", r.tag))
	start := time.Now()
	defer func() {
		r.metrics.ObserveRun(time.Since(start), err)
		if err != nil {
			log.Error("sync failed", zap.Error(err), zap.Duration("dur", time.Since(start)))
			return
		}
		log.Info("sync finished", zap.Duration("dur", time.Since(start)))
	}()

	work, err := r.worklist(ctx)
	if err != nil {
		return err
	}
	r.metrics.SetWorklist(len(work))
	log.Info("sync started", zap.Int("worklist", len(work)))

	if r.policy == CancelOnError {
		return r.runCancelOnError(ctx, log, work)
	}
	return r.runReportFirst(ctx, log, work)
}

// Update resolves a single, already stored local note against the remote store.
func (r *Reconciler) Update(ctx context.Context, h repository.LocalHandle) error {
	return r.apply(ctx, r.log, task{handle: h})
}

// worklist builds the deduplicated set of tasks for one pass.
func (r *Reconciler) worklist(ctx context.Context) ([]task, error) {
	handles, err := r.local.FetchAll(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrLocalFetch, "", err)
	}

	known := make(map[string]struct{}, len(handles))
	work := make([]task, 0, len(handles))
	for _, h := range handles {
		key := h.Key()
		if _, dup := known[key]; dup {
			return nil, errs.Wrap(errs.ErrLocalFetch, key, errs.ErrDuplicateKey)
		}
		known[key] = struct{}{}
		work = append(work, task{handle: h})
	}

	notes, err := r.remote.FetchAll(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrRemoteFetch, "", err)
	}

	for i := range notes {
		n := &notes[i]
		if !n.HasTag(r.tag) || n.Deleted {
			continue
		}
		if _, ok := known[n.Key]; ok {
			continue
		}
		known[n.Key] = struct{}{}
		h := r.local.NewHandle(model.Seed{Key: n.Key, Version: n.Version})
		work = append(work, task{handle: h, fresh: true})
	}
	return work, nil
}

func (r *Reconciler) runReportFirst(ctx context.Context, log *zap.Logger, work []task) error {
	// buffered to len(work): tasks still running after an early return never block
	results := make(chan result, len(work))
	for i, t := range work {
		go func() {
			results <- result{idx: i, err: r.apply(ctx, log, t)}
		}()
	}
	for range work {
		res := <-results
		if res.err != nil {
			return errs.Wrap(errs.ErrUpdate, work[res.idx].handle.Key(), res.err)
		}
	}
	return nil
}

func (r *Reconciler) runCancelOnError(ctx context.Context, log *zap.Logger, work []task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range work {
		g.Go(func() error {
			if err := r.apply(gctx, log, t); err != nil {
				return errs.Wrap(errs.ErrUpdate, t.handle.Key(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// apply resolves one task, records its outcome and logs it.
func (r *Reconciler) apply(ctx context.Context, log *zap.Logger, t task) error {
	if r.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
	}

	key := t.handle.Key()
	outcome, err := r.resolve(ctx, t)
	if err != nil {
		r.metrics.ObserveUpdate(metrics.OutcomeFailed)
		log.Debug("note failed", zap.String("key", key), zap.Error(err))
		return err
	}
	r.metrics.ObserveUpdate(outcome)
	log.Debug("note resolved",
		zap.String("key", key),
		zap.String("outcome", outcome),
		zap.Bool("fresh", t.fresh),
	)
	return nil
}

// resolve fetches the remote note and applies at most one local mutation.
func (r *Reconciler) resolve(ctx context.Context, t task) (string, error) {
	h := t.handle
	key := h.Key()

	n, err := r.remote.FetchOne(ctx, key)
	if err != nil {
		return "", errs.Wrap(errs.ErrRemoteFetch, key, err)
	}
	if !newer(n.Version, h.Version(), t.fresh) {
		return metrics.OutcomeSkipped, nil
	}
	if n.Deleted {
		if err := h.Remove(ctx); err != nil {
			return "", errs.Wrap(errs.ErrRemove, key, err)
		}
		return metrics.OutcomeRemoved, nil
	}
	h.Set(n)
	if err := h.Save(ctx); err != nil {
		return "", errs.Wrap(errs.ErrSave, key, err)
	}
	return metrics.OutcomeSaved, nil
}

// newer reports whether the remote version must be applied. Equal versions are not
// newer for stored notes; a fresh handle has no local state, so equal applies.
func newer(remote, local int64, fresh bool) bool {
	if fresh {
		return remote >= local
	}
	return remote > local
}

// Package batch drives the re-runnable resolution pass over unresolved
// deals: maintenance guard, run log, and a per-record loop that isolates
// failures into the review queue instead of aborting.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/db"
	"github.com/sells-group/crm-resolver/internal/resilience"
	"github.com/sells-group/crm-resolver/internal/resolver"
	"github.com/sells-group/crm-resolver/internal/review"
)

// Options controls one batch run.
type Options struct {
	// Limit caps the number of candidate deals; <= 0 means all.
	Limit int
	// MinCreatedAt skips deals created before it; zero means no floor.
	MinCreatedAt time.Time
	// Maintenance suspends the audit triggers and serializes runs.
	Maintenance bool
}

// Report summarizes a run. Processed = Succeeded + Flagged + Errors.
type Report struct {
	Processed int
	Succeeded int
	Flagged   int
	Errors    int
}

// Runner executes batch and single-deal resolution passes.
type Runner struct {
	store    crm.Store
	pipeline *resolver.Pipeline
	reviews  *review.Queue
	guard    *MaintenanceGuard
	runlog   *RunLog
}

// NewRunner creates a runner. pool may be nil, which disables maintenance
// mode and run logging (single-deal use and tests).
func NewRunner(store crm.Store, pipeline *resolver.Pipeline, reviews *review.Queue, pool db.Pool) *Runner {
	r := &Runner{store: store, pipeline: pipeline, reviews: reviews}
	if pool != nil {
		r.guard = NewMaintenanceGuard(pool)
		r.runlog = NewRunLog(pool)
	}
	return r
}

// Run processes all candidate deals. Setup failures (lock, trigger
// suspension, candidate query) abort before any record is touched; a
// failure on one record never stops the rest.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Maintenance {
		if r.guard == nil {
			return nil, eris.New("batch: maintenance mode requires a database pool")
		}
		if err := r.guard.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := r.guard.Release(ctx); err != nil {
				zap.L().Error("batch: maintenance release failed", zap.Error(err))
			}
		}()
	}

	var runID uuid.UUID
	if r.runlog != nil {
		var err error
		runID, err = r.runlog.Start(ctx)
		if err != nil {
			return nil, err
		}
	}

	rep, err := r.process(ctx, opts)

	if r.runlog != nil {
		if err != nil {
			if logErr := r.runlog.Fail(ctx, runID, err); logErr != nil {
				zap.L().Error("batch: record run failure", zap.Error(logErr))
			}
		} else if logErr := r.runlog.Complete(ctx, runID, rep); logErr != nil {
			zap.L().Error("batch: record run completion", zap.Error(logErr))
		}
	}
	return rep, err
}

func (r *Runner) process(ctx context.Context, opts Options) (*Report, error) {
	// The candidate query runs before any record is touched, so a dropped
	// connection here is worth a short retry rather than a failed run.
	deals, err := resilience.DoVal(ctx, resilience.TransientRetry("batch", "list candidate deals"),
		func(ctx context.Context) ([]crm.Deal, error) {
			return r.store.ListUnresolvedDeals(ctx, opts.Limit, opts.MinCreatedAt)
		})
	if err != nil {
		return nil, eris.Wrap(err, "batch: list candidate deals")
	}

	zap.L().Info("batch: starting", zap.Int("candidates", len(deals)))
	rep := &Report{}

	for _, deal := range deals {
		if ctx.Err() != nil {
			return rep, eris.Wrap(ctx.Err(), "batch: canceled")
		}
		rep.Processed++

		res := r.pipeline.Resolve(ctx, deal)
		switch {
		case res.OK():
			if err := r.store.SetDealResolution(ctx, deal.ID, res.CompanyID, res.ContactID); err != nil {
				rep.Errors++
				zap.L().Error("batch: persist resolution failed",
					zap.Int64("deal_id", deal.ID), zap.Error(err))
				continue
			}
			// The deal may have been flagged by an earlier run; a
			// resolved deal must not keep a pending review.
			if err := r.reviews.ArchivePending(ctx, deal.ID); err != nil {
				rep.Errors++
				zap.L().Error("batch: archive stale review failed",
					zap.Int64("deal_id", deal.ID), zap.Error(err))
				continue
			}
			rep.Succeeded++
		default:
			if _, err := r.reviews.Flag(ctx, deal, res); err != nil {
				rep.Errors++
				zap.L().Error("batch: flag review failed",
					zap.Int64("deal_id", deal.ID), zap.Error(err))
				continue
			}
			rep.Flagged++
			if res.Err != nil {
				zap.L().Warn("batch: deal flagged",
					zap.Int64("deal_id", deal.ID),
					zap.String("reason", string(res.Failure)),
					zap.Error(res.Err))
			}
		}
	}

	zap.L().Info("batch: finished",
		zap.Int("processed", rep.Processed),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("flagged", rep.Flagged),
		zap.Int("errors", rep.Errors),
	)
	return rep, nil
}

// ResolveOne resolves a single deal inline, with no maintenance mode or
// advisory lock, so it is safe to run concurrently with a batch. An
// already-resolved deal is returned as-is.
func (r *Runner) ResolveOne(ctx context.Context, dealID int64) (resolver.Result, error) {
	deal, err := r.store.GetDeal(ctx, dealID)
	if err != nil {
		return resolver.Result{}, eris.Wrap(err, "batch: load deal")
	}
	if deal == nil {
		return resolver.Result{}, eris.Errorf("batch: deal %d not found", dealID)
	}
	if deal.Resolved() {
		return resolver.Result{
			DealID:    deal.ID,
			CompanyID: *deal.CompanyID,
			ContactID: *deal.PrimaryContactID,
		}, nil
	}

	res := r.pipeline.Resolve(ctx, *deal)
	if res.OK() {
		if err := r.store.SetDealResolution(ctx, deal.ID, res.CompanyID, res.ContactID); err != nil {
			return res, eris.Wrap(err, "batch: persist resolution")
		}
		if err := r.reviews.ArchivePending(ctx, deal.ID); err != nil {
			return res, eris.Wrap(err, "batch: archive stale review")
		}
		return res, nil
	}
	if _, err := r.reviews.Flag(ctx, *deal, res); err != nil {
		return res, eris.Wrap(err, "batch: flag review")
	}
	return res, nil
}

// LastSuccess exposes the run log's most recent completed run for
// incremental invocations. Zero time when there is no run log or history.
func (r *Runner) LastSuccess(ctx context.Context) (time.Time, error) {
	if r.runlog == nil {
		return time.Time{}, nil
	}
	return r.runlog.LastSuccess(ctx)
}

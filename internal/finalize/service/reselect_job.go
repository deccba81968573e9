package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"simoj/pkg/utils/contextkey"
	"simoj/pkg/utils/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultReselectConcurrency = 8
	defaultReselectRate        = 200
	defaultReselectBurst       = 50
)

// ReselectConfig bounds a reselection run.
type ReselectConfig struct {
	Concurrency   int
	RatePerSecond float64
	Burst         int
}

// ReselectSummary reports one reselection run.
type ReselectSummary struct {
	JobID            string `json:"job_id"`
	ContestProblemID int64  `json:"contest_problem_id"`
	Owners           int    `json:"owners"`
	Changed          int    `json:"changed"`
	Failed           int    `json:"failed"`
}

// ReselectJob recomputes the contest finals of every owner of a contest
// problem after its selecting method or reveal setting changed.
type ReselectJob struct {
	finalizer   *FinalizerService
	concurrency int
	limiter     *rate.Limiter
}

// NewReselectJob creates a job running on finalizer.
func NewReselectJob(finalizer *FinalizerService, cfg ReselectConfig) (*ReselectJob, error) {
	if finalizer == nil {
		return nil, fmt.Errorf("finalizer is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultReselectConcurrency
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultReselectRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultReselectBurst
	}
	return &ReselectJob{
		finalizer:   finalizer,
		concurrency: cfg.Concurrency,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}, nil
}

// Run reselects contestProblemID. Each owner gets its own transaction; an
// owner that fails is counted and logged and does not stop the run.
func (j *ReselectJob) Run(ctx context.Context, contestProblemID int64) (ReselectSummary, error) {
	jobID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.JobID, jobID)
	ctx, span := j.finalizer.tracer.Start(ctx, "finalize.reselect",
		trace.WithAttributes(attribute.Int64("finalize.contest_problem_id", contestProblemID)),
	)
	defer span.End()

	summary := ReselectSummary{JobID: jobID, ContestProblemID: contestProblemID}
	owners, err := j.finalizer.store.ListContestOwners(ctx, contestProblemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, fmt.Errorf("list owners of contest problem %d: %w", contestProblemID, err)
	}
	summary.Owners = len(owners)

	start := time.Now()
	var (
		changed, failed atomic.Int64
		waitErr         error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, owner := range owners {
		owner := owner
		if err := j.limiter.Wait(gctx); err != nil {
			waitErr = err
			break
		}
		g.Go(func() error {
			out, err := j.finalizer.RecomputeContestFinal(gctx, &owner, contestProblemID)
			switch {
			case err != nil:
				failed.Add(1)
				j.finalizer.metrics.reselectOwner(resultError)
				logger.Warn(gctx, "reselect owner failed", zap.Int64("owner_id", owner), zap.Error(err))
			case out.Skipped:
				j.finalizer.metrics.reselectOwner(resultSkipped)
			default:
				if out.Full.Changed() || out.Initial.Changed() {
					changed.Add(1)
				}
				j.finalizer.metrics.reselectOwner(resultOK)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Changed = int(changed.Load())
	summary.Failed = int(failed.Load())
	span.SetAttributes(
		attribute.Int("finalize.owners", summary.Owners),
		attribute.Int("finalize.changed", summary.Changed),
		attribute.Int("finalize.failed", summary.Failed),
	)
	logger.Info(ctx, "contest problem reselected",
		zap.Int64("contest_problem_id", contestProblemID),
		zap.Int("owners", summary.Owners),
		zap.Int("changed", summary.Changed),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	if waitErr != nil {
		return summary, fmt.Errorf("reselect contest problem %d interrupted: %w", contestProblemID, waitErr)
	}
	return summary, nil
}

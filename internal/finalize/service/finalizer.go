package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/planner"
	"simoj/internal/finalize/policy"
	"simoj/internal/finalize/repository"
	appErr "simoj/pkg/errors"
	"simoj/pkg/utils/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries     = 5
	defaultRetryBaseDelay = 20 * time.Millisecond
	defaultRetryMaxDelay  = time.Second
	tracerName            = "simoj/finalize"
)

// Config holds finalizer dependencies and settings.
type Config struct {
	Store     repository.SubmissionStore
	Cache     *repository.FinalCache
	Publisher FinalChangedPublisher
	Metrics   *Metrics
	Tracer    trace.Tracer

	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	VerifyInvariants bool
}

// FinalizerService keeps the final flags of submissions up to date.
type FinalizerService struct {
	store     repository.SubmissionStore
	cache     *repository.FinalCache
	publisher FinalChangedPublisher
	metrics   *Metrics
	tracer    trace.Tracer

	maxRetries       int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	verifyInvariants bool
}

// NewFinalizerService creates a finalizer. Cache, Publisher, Metrics and Tracer are optional.
func NewFinalizerService(cfg Config) (*FinalizerService, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("retry max delay is below the base delay")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &FinalizerService{
		store:            cfg.Store,
		cache:            cfg.Cache,
		publisher:        cfg.Publisher,
		metrics:          cfg.Metrics,
		tracer:           cfg.Tracer,
		maxRetries:       cfg.MaxRetries,
		retryBaseDelay:   cfg.RetryBaseDelay,
		retryMaxDelay:    cfg.RetryMaxDelay,
		verifyInvariants: cfg.VerifyInvariants,
	}, nil
}

// Outcome is the result of maintaining one flag of one key.
type Outcome struct {
	Key         model.Key  `json:"key"`
	Flag        model.Flag `json:"flag"`
	WinnerID    *int64     `json:"winner_id"`
	PreviousID  *int64     `json:"previous_id"`
	RowsChanged int64      `json:"rows_changed"`
	Skipped     bool       `json:"skipped"`
}

// Changed reports whether the flag moved: the holder differs from the one
// seen before the write, or stray holders were cleared.
func (o Outcome) Changed() bool {
	if o.Skipped {
		return false
	}
	return o.RowsChanged > 0 || !sameID(o.PreviousID, o.WinnerID)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ContestOutcome holds both finals of a contest key. Skipped is set when the
// owner is absent or the contest problem no longer exists.
type ContestOutcome struct {
	Key     model.Key `json:"key"`
	Full    Outcome   `json:"full"`
	Initial Outcome   `json:"initial"`
	Skipped bool      `json:"skipped"`
}

// RecomputeProblemFinalTx recomputes the problem final of (owner, problemID)
// inside tx. A nil owner is a no-op.
func (s *FinalizerService) RecomputeProblemFinalTx(ctx context.Context, tx repository.SubmissionTx, owner *int64, problemID int64) (Outcome, error) {
	if owner == nil {
		return Outcome{Flag: model.FlagProblemFinal, Skipped: true}, nil
	}
	key := model.ProblemKey(*owner, problemID)
	return s.finalize(ctx, tx, model.FlagProblemFinal, key, policy.ProblemRule())
}

// RecomputeContestFinalTx recomputes the full and initial finals of
// (owner, contestProblemID) inside tx. Both use the contest problem settings
// read once through tx.
func (s *FinalizerService) RecomputeContestFinalTx(ctx context.Context, tx repository.SubmissionTx, owner *int64, contestProblemID int64) (ContestOutcome, error) {
	if owner == nil {
		return ContestOutcome{Skipped: true}, nil
	}
	key := model.ContestKey(*owner, contestProblemID)
	out := ContestOutcome{Key: key}

	cp, err := tx.GetContestProblem(ctx, contestProblemID)
	if err != nil {
		if errors.Is(err, repository.ErrContestProblemNotFound) {
			logger.Debug(ctx, "contest problem gone, skipping contest finals", zap.Int64("contest_problem_id", contestProblemID))
			out.Skipped = true
			return out, nil
		}
		return out, fmt.Errorf("load contest problem %d: %w", contestProblemID, err)
	}

	fullRule, err := policy.ForMethod(cp.FinalSelectingMethod)
	if err != nil {
		return out, appErr.Wrapf(err, appErr.InvalidSelectingMethod, "contest problem %d has an invalid selecting method", contestProblemID)
	}
	initialRule, sameAsFull, err := policy.InitialRule(*cp)
	if err != nil {
		return out, appErr.Wrapf(err, appErr.InvalidSelectingMethod, "contest problem %d has an invalid selecting method", contestProblemID)
	}

	if out.Full, err = s.finalize(ctx, tx, model.FlagContestFinal, key, fullRule); err != nil {
		return out, err
	}
	if sameAsFull {
		out.Initial, err = s.applyWinner(ctx, tx, model.FlagContestInitialFinal, key, out.Full.WinnerID)
	} else {
		out.Initial, err = s.finalize(ctx, tx, model.FlagContestInitialFinal, key, initialRule)
	}
	return out, err
}

func (s *FinalizerService) finalize(ctx context.Context, tx repository.SubmissionTx, flag model.Flag, key model.Key, rule policy.Rule) (Outcome, error) {
	winner, err := planner.FindWinner(ctx, tx, key, rule)
	if err != nil {
		return Outcome{Key: key, Flag: flag}, err
	}
	return s.applyWinner(ctx, tx, flag, key, winner.IDPtr())
}

// applyWinner writes winner as the only holder of flag within key and, when
// enabled, checks the result before the transaction may commit.
func (s *FinalizerService) applyWinner(ctx context.Context, tx repository.SubmissionTx, flag model.Flag, key model.Key, winner *int64) (Outcome, error) {
	out := Outcome{Key: key, Flag: flag, WinnerID: winner}
	prev, held, err := tx.FindFinal(ctx, flag, key)
	if err != nil {
		return out, fmt.Errorf("read %s for %s: %w", flag, key, err)
	}
	if held {
		out.PreviousID = &prev
	}
	changed, err := tx.SetFlagExclusive(ctx, flag, key, winner)
	if err != nil {
		return out, fmt.Errorf("write %s for %s: %w", flag, key, err)
	}
	out.RowsChanged = changed

	if !s.verifyInvariants {
		return out, nil
	}
	n, err := tx.CountFlagged(ctx, flag, key)
	if err != nil {
		return out, fmt.Errorf("count %s for %s: %w", flag, key, err)
	}
	var want int64
	if winner != nil {
		want = 1
	}
	if n != want {
		logger.Error(ctx, "final flag invariant violated",
			zap.String("flag", string(flag)),
			zap.String("key", key.String()),
			zap.Int64("flagged", n),
			zap.Bool("has_winner", winner != nil),
		)
		return out, appErr.Newf(appErr.FinalInvariantViolation, "%s holds %d rows for %s", flag, n, key).
			WithDetail("flag", string(flag)).
			WithDetail("key", key.String()).
			WithDetail("flagged", n)
	}
	return out, nil
}

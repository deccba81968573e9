package service

import (
	"context"
	"time"

	"simoj/internal/finalize/repository"
	appErr "simoj/pkg/errors"
	"simoj/pkg/utils/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type txFunc func(ctx context.Context, tx repository.SubmissionTx) error

// runInTx runs fn in a fresh serializable transaction. A serialization
// conflict reruns fn from the start, reads included, up to maxRetries times.
func (s *FinalizerService) runInTx(ctx context.Context, scope string, fn txFunc) error {
	start := time.Now()
	err := s.retryTx(ctx, scope, fn)
	result := resultOK
	switch {
	case err == nil:
	case appErr.Is(err, appErr.FinalizationConflict):
		result = resultConflict
	default:
		result = resultError
	}
	s.metrics.observeRecompute(scope, result, time.Since(start))
	return err
}

func (s *FinalizerService) retryTx(ctx context.Context, scope string, fn txFunc) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, s.retryBaseDelay, s.retryMaxDelay)
			s.metrics.conflictRetry()
			logger.Warn(ctx, "finalization conflicted, retrying",
				zap.String("scope", scope),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}

		err := s.attemptTx(ctx, scope, attempt, fn)
		if err == nil {
			return nil
		}
		if !repository.IsSerializationConflict(err) {
			return err
		}
		lastErr = err
	}

	logger.Error(ctx, "finalization retries exhausted",
		zap.String("scope", scope),
		zap.Int("attempts", s.maxRetries+1),
		zap.Error(lastErr),
	)
	return appErr.Wrapf(lastErr, appErr.FinalizationConflict, "finalization still conflicting after %d attempts", s.maxRetries+1)
}

func (s *FinalizerService) attemptTx(ctx context.Context, scope string, attempt int, fn txFunc) (err error) {
	ctx, span := s.tracer.Start(ctx, "finalize."+scope,
		trace.WithAttributes(attribute.Int("finalize.attempt", attempt)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

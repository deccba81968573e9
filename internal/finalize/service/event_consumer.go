package service

import (
	"context"
	"encoding/json"
	"fmt"

	"simoj/internal/common/mq"
	"simoj/internal/finalize/model"
	appErr "simoj/pkg/errors"
	"simoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// EventConsumer turns submission and contest problem events into recomputations.
type EventConsumer struct {
	finalizer *FinalizerService
	reselect  *ReselectJob
}

// NewEventConsumer creates a consumer. reselect may be nil when contest
// problem events are not subscribed.
func NewEventConsumer(finalizer *FinalizerService, reselect *ReselectJob) (*EventConsumer, error) {
	if finalizer == nil {
		return nil, fmt.Errorf("finalizer is required")
	}
	return &EventConsumer{finalizer: finalizer, reselect: reselect}, nil
}

// HandleSubmissionMessage recomputes the keys named by a submission event.
// Every event type is handled the same way since the submission row already
// reflects the change; only the set of keys differs.
func (c *EventConsumer) HandleSubmissionMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var event model.SubmissionEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Warn(ctx, "decode submission event failed", zap.String("message_id", msg.ID), zap.Error(err))
		return appErr.Wrapf(err, appErr.InvalidParams, "decode submission event failed")
	}
	if err := event.Validate(); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "submission event is invalid: %s", err.Error())
	}
	if event.OwnerID == nil {
		logger.Debug(ctx, "ignoring system submission event", zap.Int64("submission_id", event.SubmissionID))
		return nil
	}

	_, err := c.finalizer.RecomputeAll(ctx, RecomputeRequest{
		SubmissionID:             event.SubmissionID,
		Owner:                    event.OwnerID,
		ProblemID:                event.ProblemID,
		ContestProblemID:         event.ContestProblemID,
		PreviousContestProblemID: event.PreviousContestProblemID,
		InOwnTransaction:         true,
	})
	if err != nil {
		return fmt.Errorf("recompute after %s of submission %d failed: %w", event.Type, event.SubmissionID, err)
	}
	return nil
}

// HandleContestProblemMessage starts a reselection for a changed contest problem.
func (c *EventConsumer) HandleContestProblemMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	if c.reselect == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("reselection is not configured")
	}
	var event model.ContestProblemEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Warn(ctx, "decode contest problem event failed", zap.String("message_id", msg.ID), zap.Error(err))
		return appErr.Wrapf(err, appErr.InvalidParams, "decode contest problem event failed")
	}
	if err := event.Validate(); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "contest problem event is invalid: %s", err.Error())
	}

	summary, err := c.reselect.Run(ctx, event.ContestProblemID)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReselectionFailed, "reselect contest problem %d failed", event.ContestProblemID)
	}
	if summary.Failed > 0 {
		logger.Warn(ctx, "reselection finished with failures",
			zap.Int64("contest_problem_id", event.ContestProblemID),
			zap.Int("failed", summary.Failed),
		)
	}
	return nil
}

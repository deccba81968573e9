package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/repository"
	appErr "simoj/pkg/errors"
	"simoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	scopeProblem   = "problem"
	scopeContest   = "contest"
	scopeAll       = "all"
	scopeDelete    = "delete"
	scopeCandidacy = "candidacy"
)

// RecomputeRequest names every key touched by one submission change.
type RecomputeRequest struct {
	// SubmissionID is the changed submission, when known. A flag it held on
	// a key it left or was deleted from is reported as moved.
	SubmissionID     int64
	Owner            *int64
	ProblemID        int64
	ContestProblemID *int64
	// PreviousContestProblemID is the contest problem the submission was
	// attached to before the change, when it moved.
	PreviousContestProblemID *int64

	// InOwnTransaction opens and retries a dedicated transaction. Otherwise
	// the work joins Tx and the caller owns commit, retry and AfterCommit.
	InOwnTransaction bool
	Tx               repository.SubmissionTx
}

// RecomputeResult collects the outcomes of a recomputation.
type RecomputeResult struct {
	Problem  Outcome          `json:"problem"`
	Contests []ContestOutcome `json:"contests,omitempty"`
}

// Outcomes flattens the result to the flags actually maintained.
func (r RecomputeResult) Outcomes() []Outcome {
	var out []Outcome
	if !r.Problem.Skipped {
		out = append(out, r.Problem)
	}
	for _, c := range r.Contests {
		if c.Skipped {
			continue
		}
		out = append(out, c.Full, c.Initial)
	}
	return out
}

// RecomputeProblemFinal recomputes one problem key in its own transaction.
func (s *FinalizerService) RecomputeProblemFinal(ctx context.Context, owner *int64, problemID int64) (Outcome, error) {
	var out Outcome
	err := s.runInTx(ctx, scopeProblem, func(ctx context.Context, tx repository.SubmissionTx) error {
		var err error
		out, err = s.RecomputeProblemFinalTx(ctx, tx, owner, problemID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.AfterCommit(ctx, RecomputeResult{Problem: out})
	return out, nil
}

// RecomputeContestFinal recomputes one contest key in its own transaction.
func (s *FinalizerService) RecomputeContestFinal(ctx context.Context, owner *int64, contestProblemID int64) (ContestOutcome, error) {
	var out ContestOutcome
	err := s.runInTx(ctx, scopeContest, func(ctx context.Context, tx repository.SubmissionTx) error {
		var err error
		out, err = s.RecomputeContestFinalTx(ctx, tx, owner, contestProblemID)
		return err
	})
	if err != nil {
		return ContestOutcome{}, err
	}
	s.AfterCommit(ctx, RecomputeResult{Problem: Outcome{Skipped: true}, Contests: []ContestOutcome{out}})
	return out, nil
}

// RecomputeAll recomputes the problem key and, when present, the contest
// keys of a submission change as one unit of work.
func (s *FinalizerService) RecomputeAll(ctx context.Context, req RecomputeRequest) (RecomputeResult, error) {
	if req.ProblemID <= 0 {
		return RecomputeResult{}, appErr.ValidationError("problem_id", "required")
	}
	if !req.InOwnTransaction {
		if req.Tx == nil {
			return RecomputeResult{}, appErr.New(appErr.InvalidParams).WithMessage("transaction is required when not running in an own transaction")
		}
		return s.recomputeAllTx(ctx, req.Tx, req)
	}

	var res RecomputeResult
	err := s.runInTx(ctx, scopeAll, func(ctx context.Context, tx repository.SubmissionTx) error {
		var err error
		res, err = s.recomputeAllTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	s.AfterCommit(ctx, res)
	return res, nil
}

func (s *FinalizerService) recomputeAllTx(ctx context.Context, tx repository.SubmissionTx, req RecomputeRequest) (RecomputeResult, error) {
	var subject *departure
	if req.SubmissionID > 0 {
		sub, err := tx.GetSubmission(ctx, req.SubmissionID)
		switch {
		case err == nil:
			subject = &departure{id: sub.ID, sub: sub, previousContest: req.PreviousContestProblemID}
		case errors.Is(err, repository.ErrSubmissionNotFound):
			subject = &departure{id: req.SubmissionID}
		default:
			return RecomputeResult{}, fmt.Errorf("load submission %d: %w", req.SubmissionID, err)
		}
	}
	return s.recomputeKeysTx(ctx, tx, req.Owner, req.ProblemID, req.ContestProblemID, req.PreviousContestProblemID, subject)
}

func (s *FinalizerService) recomputeKeysTx(ctx context.Context, tx repository.SubmissionTx, owner *int64, problemID int64, contestProblemID, previous *int64, subject *departure) (RecomputeResult, error) {
	var (
		res RecomputeResult
		err error
	)
	if res.Problem, err = s.RecomputeProblemFinalTx(ctx, tx, owner, problemID); err != nil {
		return res, err
	}
	for _, cpID := range contestKeys(contestProblemID, previous) {
		out, err := s.RecomputeContestFinalTx(ctx, tx, owner, cpID)
		if err != nil {
			return res, err
		}
		res.Contests = append(res.Contests, out)
	}
	subject.attribute(&res)
	return res, nil
}

// departure is a submission's flag state captured before the recomputation.
// The store can no longer show a deleted row, or a moved row under its old
// contest key, as the previous holder.
type departure struct {
	id int64

	// sub is nil when the row was already gone. Every key that ends up
	// without a visible previous holder then credits it to id.
	sub             *model.Submission
	previousContest *int64
}

func (d *departure) attribute(res *RecomputeResult) {
	if d == nil {
		return
	}
	credit := func(out *Outcome) {
		switch {
		case out.Skipped:
		case out.PreviousID == nil && d.held(out.Flag, out.Key):
			id := d.id
			out.PreviousID = &id
		case out.PreviousID != nil && *out.PreviousID == d.id && d.arrived(out.Key):
			// A moved row carries the flags of its old key until rewritten here.
			out.PreviousID = nil
		}
	}
	credit(&res.Problem)
	for i := range res.Contests {
		if res.Contests[i].Skipped {
			continue
		}
		credit(&res.Contests[i].Full)
		credit(&res.Contests[i].Initial)
	}
}

func (d *departure) arrived(key model.Key) bool {
	if d.sub == nil || d.previousContest == nil || key.Scope != model.ScopeContest {
		return false
	}
	return key.ID != *d.previousContest && d.sub.Matches(key)
}

func (d *departure) held(flag model.Flag, key model.Key) bool {
	if d.sub == nil {
		return true
	}
	if !d.sub.FlagValue(flag) {
		return false
	}
	if key.Scope == model.ScopeContest && d.previousContest != nil {
		return d.sub.OwnerID != nil && *d.sub.OwnerID == key.OwnerID && *d.previousContest == key.ID
	}
	return d.sub.Matches(key)
}

func contestKeys(current, previous *int64) []int64 {
	var ids []int64
	if current != nil {
		ids = append(ids, *current)
	}
	if previous != nil && (current == nil || *previous != *current) {
		ids = append(ids, *previous)
	}
	return ids
}

// DeleteSubmission removes a submission and recomputes its keys before the
// transaction commits.
func (s *FinalizerService) DeleteSubmission(ctx context.Context, submissionID int64) (RecomputeResult, error) {
	var res RecomputeResult
	err := s.runInTx(ctx, scopeDelete, func(ctx context.Context, tx repository.SubmissionTx) error {
		sub, err := loadSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSubmission(ctx, submissionID); err != nil {
			return err
		}
		res, err = s.recomputeKeysTx(ctx, tx, sub.OwnerID, sub.ProblemID, sub.ContestProblemID, nil, &departure{id: sub.ID, sub: sub})
		return err
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	s.AfterCommit(ctx, res)
	return res, nil
}

// SetFinalCandidate changes a submission's eligibility and recomputes its
// keys in the same transaction.
func (s *FinalizerService) SetFinalCandidate(ctx context.Context, submissionID int64, candidate bool) (RecomputeResult, error) {
	var res RecomputeResult
	err := s.runInTx(ctx, scopeCandidacy, func(ctx context.Context, tx repository.SubmissionTx) error {
		sub, err := loadSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if err := tx.SetFinalCandidate(ctx, submissionID, candidate); err != nil {
			return err
		}
		res, err = s.recomputeKeysTx(ctx, tx, sub.OwnerID, sub.ProblemID, sub.ContestProblemID, nil, nil)
		return err
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	s.AfterCommit(ctx, res)
	return res, nil
}

func loadSubmission(ctx context.Context, tx repository.SubmissionTx, id int64) (*model.Submission, error) {
	sub, err := tx.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.Wrapf(err, appErr.SubmissionNotFound, "submission %d not found", id)
		}
		return nil, err
	}
	return sub, nil
}

// AfterCommit invalidates cached finals and announces every flag that moved.
// Callers running RecomputeAll inside their own transaction call it once
// that transaction has committed.
func (s *FinalizerService) AfterCommit(ctx context.Context, res RecomputeResult) {
	for _, out := range res.Outcomes() {
		if !out.Changed() {
			continue
		}
		s.metrics.winnerChanged(string(out.Flag))
		logger.Debug(ctx, "final flag moved",
			zap.String("flag", string(out.Flag)),
			zap.String("key", out.Key.String()),
			zap.Int64p("winner_id", out.WinnerID),
			zap.Int64p("previous_id", out.PreviousID),
			zap.Int64("rows_changed", out.RowsChanged),
		)
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, out.Flag, out.Key); err != nil {
				logger.Warn(ctx, "invalidate cached final failed", zap.String("key", out.Key.String()), zap.Error(err))
			}
		}
		if s.publisher != nil {
			event := model.FinalChangedEvent{
				Flag:       out.Flag,
				Scope:      out.Key.Scope,
				OwnerID:    out.Key.OwnerID,
				KeyID:      out.Key.ID,
				WinnerID:   out.WinnerID,
				PreviousID: out.PreviousID,
				OccurredAt: time.Now().UTC(),
			}
			if err := s.publisher.PublishFinalChanged(ctx, event); err != nil {
				logger.Warn(ctx, "publish final changed event failed", zap.String("key", out.Key.String()), zap.Error(err))
			}
		}
	}
}

package repository

import (
	"context"
	"errors"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/planner"
)

var (
	// ErrSerializationConflict marks a transaction the store aborted because of a
	// concurrent writer. The whole unit of work may be retried.
	ErrSerializationConflict = errors.New("serialization conflict")

	ErrContestProblemNotFound = errors.New("contest problem not found")
	ErrSubmissionNotFound     = errors.New("submission not found")
	ErrTxClosed               = errors.New("transaction already closed")
)

// SubmissionStore is the persistence boundary of the finalizer.
type SubmissionStore interface {
	// BeginTx opens a serializable transaction.
	BeginTx(ctx context.Context) (SubmissionTx, error)

	// FindFinal reads the committed holder of flag for key.
	FindFinal(ctx context.Context, flag model.Flag, key model.Key) (id int64, found bool, err error)

	// ListContestOwners returns the distinct present owners of submissions
	// attached to a contest problem, ascending.
	ListContestOwners(ctx context.Context, contestProblemID int64) ([]int64, error)
}

// SubmissionTx is one serializable unit of work.
type SubmissionTx interface {
	planner.CandidateReader

	GetContestProblem(ctx context.Context, id int64) (*model.ContestProblem, error)
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	DeleteSubmission(ctx context.Context, id int64) error
	SetFinalCandidate(ctx context.Context, id int64, candidate bool) error

	// SetFlagExclusive makes winner the only holder of flag within key, or
	// clears flag on the whole key when winner is nil. Rows already holding the
	// target value are not touched; the number of changed rows is returned.
	SetFlagExclusive(ctx context.Context, flag model.Flag, key model.Key, winner *int64) (int64, error)

	// FindFinal reads the holder of flag for key as this transaction sees it.
	FindFinal(ctx context.Context, flag model.Flag, key model.Key) (id int64, found bool, err error)

	// CountFlagged counts rows of key holding flag, candidates or not.
	CountFlagged(ctx context.Context, flag model.Flag, key model.Key) (int64, error)

	Commit() error
	Rollback() error
}

// IsSerializationConflict reports whether err came from an aborted transaction.
func IsSerializationConflict(err error) bool {
	return errors.Is(err, ErrSerializationConflict)
}

package service

import (
	"context"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/repository"
	appErr "simoj/pkg/errors"
)

// ContestFinals are the committed finals of a contest key.
type ContestFinals struct {
	FullID    *int64 `json:"full_id"`
	InitialID *int64 `json:"initial_id"`
}

// GetProblemFinal returns the current problem final of (owner, problemID), or nil.
func (s *FinalizerService) GetProblemFinal(ctx context.Context, ownerID, problemID int64) (*int64, error) {
	return s.readFinal(ctx, model.FlagProblemFinal, model.ProblemKey(ownerID, problemID))
}

// GetContestFinals returns both current finals of (owner, contestProblemID).
func (s *FinalizerService) GetContestFinals(ctx context.Context, ownerID, contestProblemID int64) (ContestFinals, error) {
	key := model.ContestKey(ownerID, contestProblemID)
	full, err := s.readFinal(ctx, model.FlagContestFinal, key)
	if err != nil {
		return ContestFinals{}, err
	}
	initial, err := s.readFinal(ctx, model.FlagContestInitialFinal, key)
	if err != nil {
		return ContestFinals{}, err
	}
	return ContestFinals{FullID: full, InitialID: initial}, nil
}

func (s *FinalizerService) readFinal(ctx context.Context, flag model.Flag, key model.Key) (*int64, error) {
	if key.OwnerID <= 0 || key.ID <= 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("owner and key id must be positive")
	}
	var (
		id  *int64
		err error
	)
	if s.cache != nil {
		id, err = s.cache.Get(ctx, flag, key)
	} else {
		id, err = findFinal(ctx, s.store, flag, key)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "read %s for %s failed", flag, key)
	}
	return id, nil
}

func findFinal(ctx context.Context, store repository.SubmissionStore, flag model.Flag, key model.Key) (*int64, error) {
	id, found, err := store.FindFinal(ctx, flag, key)
	if err != nil || !found {
		return nil, err
	}
	return &id, nil
}

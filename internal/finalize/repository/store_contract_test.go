package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"simoj/internal/finalize/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeHarness struct {
	store             SubmissionStore
	putSubmission     func(t *testing.T, sub model.Submission)
	putContestProblem func(t *testing.T, cp model.ContestProblem)
}

func memoryHarness(t *testing.T) storeHarness {
	s := NewMemoryStore()
	return storeHarness{
		store:             s,
		putSubmission:     func(_ *testing.T, sub model.Submission) { s.PutSubmission(sub) },
		putContestProblem: func(_ *testing.T, cp model.ContestProblem) { s.PutContestProblem(cp) },
	}
}

var sqliteSeq atomic.Int64

func gormHarness(t *testing.T) storeHarness {
	gdb, err := OpenGorm(GormConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:finalize_%d?mode=memory&cache=shared", sqliteSeq.Add(1)),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewGormSubmissionStore(gdb)
	require.NoError(t, s.AutoMigrate())
	return storeHarness{
		store: s,
		putSubmission: func(t *testing.T, sub model.Submission) {
			require.NoError(t, s.SaveSubmission(context.Background(), &sub))
		},
		putContestProblem: func(t *testing.T, cp model.ContestProblem) {
			require.NoError(t, s.SaveContestProblem(context.Background(), &cp))
		},
	}
}

func i64(v int64) *int64 { return &v }

func sub(id, owner, problem, score int64, full, initial model.Status) model.Submission {
	return model.Submission{
		ID:               id,
		OwnerID:          i64(owner),
		ProblemID:        problem,
		Score:            score,
		FullStatus:       full,
		InitialStatus:    initial,
		IsFinalCandidate: true,
	}
}

func TestStoreContract(t *testing.T) {
	harnesses := map[string]func(*testing.T) storeHarness{
		"memory":      memoryHarness,
		"gorm-sqlite": gormHarness,
	}
	for name, mk := range harnesses {
		mk := mk
		t.Run(name, func(t *testing.T) {
			runStoreContract(t, mk)
		})
	}
}

func runStoreContract(t *testing.T, mk func(*testing.T) storeHarness) {
	ctx := context.Background()
	key := model.ProblemKey(1, 1)

	t.Run("planner reads", func(t *testing.T) {
		h := mk(t)
		h.putSubmission(t, sub(1, 1, 1, 50, model.StatusOK, model.StatusOK))
		h.putSubmission(t, sub(2, 1, 1, 80, model.StatusJudgeError, model.StatusOK))
		h.putSubmission(t, sub(3, 1, 1, 80, model.StatusOK, model.StatusWrongAnswer))
		excluded := sub(4, 1, 1, 100, model.StatusOK, model.StatusOK)
		excluded.IsFinalCandidate = false
		h.putSubmission(t, excluded)
		h.putSubmission(t, sub(5, 2, 1, 90, model.StatusOK, model.StatusOK))

		tx, err := h.store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		score, found, err := tx.FindMaxScore(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(80), score)

		rank, found, err := tx.FindBestStatusRank(ctx, key, model.CandidateQuery{Score: &score, Field: model.FieldFull})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, model.RankAccepted, rank)

		id, found, err := tx.FindMaxID(ctx, key, model.CandidateQuery{Score: &score, Field: model.FieldFull, Rank: &rank})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(3), id)

		judgeErr := model.RankJudgeError
		id, found, err = tx.FindMaxID(ctx, key, model.CandidateQuery{Score: &score, Field: model.FieldFull, Rank: &judgeErr})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(2), id)

		rank, found, err = tx.FindBestStatusRank(ctx, key, model.CandidateQuery{Field: model.FieldInitial})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, model.RankAccepted, rank)

		id, found, err = tx.FindMaxID(ctx, key, model.CandidateQuery{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(3), id)

		_, found, err = tx.FindMaxScore(ctx, model.ProblemKey(9, 1))
		require.NoError(t, err)
		assert.False(t, found)
		_, found, err = tx.FindBestStatusRank(ctx, model.ProblemKey(9, 1), model.CandidateQuery{Field: model.FieldFull})
		require.NoError(t, err)
		assert.False(t, found)
		_, found, err = tx.FindMaxID(ctx, model.ProblemKey(9, 1), model.CandidateQuery{})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set flag exclusive only touches differing rows", func(t *testing.T) {
		h := mk(t)
		h.putSubmission(t, sub(1, 1, 1, 50, model.StatusOK, model.StatusOK))
		h.putSubmission(t, sub(2, 1, 1, 80, model.StatusOK, model.StatusOK))
		stale := sub(3, 1, 1, 10, model.StatusOK, model.StatusOK)
		stale.IsFinalCandidate = false
		stale.IsProblemFinal = true
		h.putSubmission(t, stale)
		other := sub(4, 2, 1, 10, model.StatusOK, model.StatusOK)
		other.IsProblemFinal = true
		h.putSubmission(t, other)

		tx, err := h.store.BeginTx(ctx)
		require.NoError(t, err)

		steps := []struct {
			winner *int64
			want   int64
			count  int64
		}{
			{winner: i64(2), want: 2, count: 1},
			{winner: i64(2), want: 0, count: 1},
			{winner: i64(1), want: 2, count: 1},
			{winner: nil, want: 1, count: 0},
			{winner: nil, want: 0, count: 0},
			{winner: i64(2), want: 1, count: 1},
		}
		for i, step := range steps {
			changed, err := tx.SetFlagExclusive(ctx, model.FlagProblemFinal, key, step.winner)
			require.NoError(t, err, "step %d", i)
			assert.Equal(t, step.want, changed, "step %d", i)
			n, err := tx.CountFlagged(ctx, model.FlagProblemFinal, key)
			require.NoError(t, err)
			assert.Equal(t, step.count, n, "step %d", i)
		}
		require.NoError(t, tx.Commit())

		id, found, err := h.store.FindFinal(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(2), id)

		id, found, err = h.store.FindFinal(ctx, model.FlagProblemFinal, model.ProblemKey(2, 1))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(4), id)
	})

	t.Run("contest flags are scoped by contest problem", func(t *testing.T) {
		h := mk(t)
		a := sub(1, 1, 1, 50, model.StatusOK, model.StatusOK)
		a.ContestProblemID = i64(7)
		b := sub(2, 1, 1, 60, model.StatusOK, model.StatusOK)
		b.ContestProblemID = i64(8)
		h.putSubmission(t, a)
		h.putSubmission(t, b)

		tx, err := h.store.BeginTx(ctx)
		require.NoError(t, err)
		changed, err := tx.SetFlagExclusive(ctx, model.FlagContestInitialFinal, model.ContestKey(1, 7), i64(1))
		require.NoError(t, err)
		assert.Equal(t, int64(1), changed)

		_, err = tx.SetFlagExclusive(ctx, model.FlagProblemFinal, model.ContestKey(1, 7), i64(1))
		assert.Error(t, err)
		_, err = tx.CountFlagged(ctx, model.FlagContestFinal, model.ProblemKey(1, 1))
		assert.Error(t, err)
		require.NoError(t, tx.Commit())

		_, found, err := h.store.FindFinal(ctx, model.FlagContestInitialFinal, model.ContestKey(1, 8))
		require.NoError(t, err)
		assert.False(t, found)
		id, found, err := h.store.FindFinal(ctx, model.FlagContestInitialFinal, model.ContestKey(1, 7))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(1), id)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		h := mk(t)
		h.putSubmission(t, sub(1, 1, 1, 50, model.StatusOK, model.StatusOK))

		tx, err := h.store.BeginTx(ctx)
		require.NoError(t, err)
		_, err = tx.SetFlagExclusive(ctx, model.FlagProblemFinal, key, i64(1))
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		_, found, err := h.store.FindFinal(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("transaction reads its own flag holder", func(t *testing.T) {
		h := mk(t)
		held := sub(1, 1, 1, 50, model.StatusOK, model.StatusOK)
		held.IsProblemFinal = true
		h.putSubmission(t, held)
		h.putSubmission(t, sub(2, 1, 1, 60, model.StatusOK, model.StatusOK))

		tx, err := h.store.BeginTx(ctx)
		require.NoError(t, err)
		id, found, err := tx.FindFinal(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(1), id)

		require.NoError(t, tx.DeleteSubmission(ctx, 1))
		_, found, err = tx.FindFinal(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		assert.False(t, found)

		_, err = tx.SetFlagExclusive(ctx, model.FlagProblemFinal, key, i64(2))
		require.NoError(t, err)
		id, found, err = tx.FindFinal(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(2), id)

		_, _, err = tx.FindFinal(ctx, model.FlagContestFinal, key)
		assert.Error(t, err)
		require.NoError(t, tx.Rollback())

		id, found, err = h.store.FindFinal(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(1), id)
	})

	t.Run("submission and contest problem lookups", func(t *testing.T) {
		h := mk(t)
		s := sub(1, 1, 1, 50, model.StatusWrongAnswer, model.StatusOK)
		s.ContestProblemID = i64(7)
		h.putSubmission(t, s)
		h.putSubmission(t, sub(2, 1, 1, 60, model.StatusOK, model.StatusOK))
		h.putContestProblem(t, model.ContestProblem{ID: 7, FinalSelectingMethod: model.WithHighestScore, RevealScore: true})

		tx, err := h.store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		cp, err := tx.GetContestProblem(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, model.WithHighestScore, cp.FinalSelectingMethod)
		assert.True(t, cp.RevealScore)

		_, err = tx.GetContestProblem(ctx, 99)
		assert.ErrorIs(t, err, ErrContestProblemNotFound)

		got, err := tx.GetSubmission(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got.OwnerID)
		require.NotNil(t, got.ContestProblemID)
		assert.Equal(t, int64(1), *got.OwnerID)
		assert.Equal(t, int64(7), *got.ContestProblemID)
		assert.Equal(t, model.StatusWrongAnswer, got.FullStatus)
		assert.Equal(t, model.StatusOK, got.InitialStatus)
		assert.True(t, got.IsFinalCandidate)

		require.NoError(t, tx.SetFinalCandidate(ctx, 2, false))
		id, found, err := tx.FindMaxID(ctx, key, model.CandidateQuery{})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(1), id)

		require.NoError(t, tx.DeleteSubmission(ctx, 1))
		_, err = tx.GetSubmission(ctx, 1)
		assert.ErrorIs(t, err, ErrSubmissionNotFound)
		assert.ErrorIs(t, tx.DeleteSubmission(ctx, 1), ErrSubmissionNotFound)

		_, found, err = tx.FindMaxID(ctx, key, model.CandidateQuery{})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("list contest owners", func(t *testing.T) {
		h := mk(t)
		for i, owner := range []int64{3, 1, 1} {
			s := sub(int64(i+1), owner, 1, 0, model.StatusOK, model.StatusOK)
			s.ContestProblemID = i64(7)
			h.putSubmission(t, s)
		}
		system := sub(10, 0, 1, 0, model.StatusOK, model.StatusOK)
		system.OwnerID = nil
		system.ContestProblemID = i64(7)
		h.putSubmission(t, system)
		elsewhere := sub(11, 2, 1, 0, model.StatusOK, model.StatusOK)
		elsewhere.ContestProblemID = i64(8)
		h.putSubmission(t, elsewhere)

		owners, err := h.store.ListContestOwners(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, owners)

		owners, err = h.store.ListContestOwners(ctx, 99)
		require.NoError(t, err)
		assert.Empty(t, owners)
	})
}

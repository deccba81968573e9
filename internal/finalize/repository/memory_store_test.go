package repository

import (
	"context"
	"testing"
	"time"

	"simoj/internal/finalize/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAssignsIDs(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	assert.Equal(t, int64(1), s.PutSubmission(model.Submission{ProblemID: 1}))
	assert.Equal(t, int64(10), s.PutSubmission(model.Submission{ID: 10, ProblemID: 1}))
	assert.Equal(t, int64(11), s.PutSubmission(model.Submission{ProblemID: 1}))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{1, 10, 11}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})
}

func TestMemoryStoreCopiesOnPut(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	owner := int64(5)
	id := s.PutSubmission(model.Submission{OwnerID: &owner, ProblemID: 1})
	owner = 6

	got, ok := s.Submission(id)
	require.True(t, ok)
	assert.Equal(t, int64(5), *got.OwnerID)

	*got.OwnerID = 7
	again, _ := s.Submission(id)
	assert.Equal(t, int64(5), *again.OwnerID)
}

func TestMemoryStoreWritesInvisibleUntilCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	id := s.PutSubmission(sub(0, 1, 1, 10, model.StatusOK, model.StatusOK))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.SetFlagExclusive(ctx, model.FlagProblemFinal, model.ProblemKey(1, 1), &id)
	require.NoError(t, err)

	got, _ := s.Submission(id)
	assert.False(t, got.IsProblemFinal)

	require.NoError(t, tx.Commit())
	got, _ = s.Submission(id)
	assert.True(t, got.IsProblemFinal)
}

func TestMemoryStoreSerializesTransactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.BeginTx(ctx)
	require.NoError(t, err)

	started := make(chan SubmissionTx)
	go func() {
		tx, err := s.BeginTx(ctx)
		if err != nil {
			close(started)
			return
		}
		started <- tx
	}()

	select {
	case <-started:
		t.Fatal("second transaction started while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit())
	select {
	case second, ok := <-started:
		require.True(t, ok)
		require.NoError(t, second.Rollback())
	case <-time.After(time.Second):
		t.Fatal("second transaction never started")
	}
}

func TestMemoryStoreBeginTxHonorsContext(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	tx, err := s.BeginTx(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.BeginTx(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryTxClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.ErrorIs(t, tx.Rollback(), ErrTxClosed)
	assert.ErrorIs(t, tx.Commit(), ErrTxClosed)
	_, _, err = tx.FindMaxScore(ctx, model.ProblemKey(1, 1))
	assert.ErrorIs(t, err, ErrTxClosed)
	_, err = tx.SetFlagExclusive(ctx, model.FlagProblemFinal, model.ProblemKey(1, 1), nil)
	assert.ErrorIs(t, err, ErrTxClosed)
}

func TestMemoryStoreRemoveContestProblem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutContestProblem(model.ContestProblem{ID: 3, FinalSelectingMethod: model.LastCompiling})
	s.RemoveContestProblem(3)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.GetContestProblem(ctx, 3)
	assert.ErrorIs(t, err, ErrContestProblemNotFound)
}

package repository

import (
	"context"
	"testing"
	"time"

	"simoj/internal/common/cache"
	"simoj/internal/finalize/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	SubmissionStore
	reads int
}

func (s *countingStore) FindFinal(ctx context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	s.reads++
	return s.SubmissionStore.FindFinal(ctx, flag, key)
}

func newFinalCacheFixture(t *testing.T) (*FinalCache, *countingStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryStore()
	counting := &countingStore{SubmissionStore: mem}
	return NewFinalCache(counting, client, time.Minute, 10*time.Second), counting, mem, mr
}

func TestFinalCacheServesRepeatReadsFromRedis(t *testing.T) {
	ctx := context.Background()
	fc, counting, mem, mr := newFinalCacheFixture(t)
	s := sub(0, 1, 2, 10, model.StatusOK, model.StatusOK)
	s.IsProblemFinal = true
	id := mem.PutSubmission(s)
	key := model.ProblemKey(1, 2)

	for i := 0; i < 3; i++ {
		got, err := fc.Get(ctx, model.FlagProblemFinal, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, *got)
	}
	assert.Equal(t, 1, counting.reads)

	raw, err := mr.Get("final:is_problem_final:1:2")
	require.NoError(t, err)
	assert.Equal(t, "1", raw)
	assert.LessOrEqual(t, mr.TTL("final:is_problem_final:1:2"), time.Minute)
}

func TestFinalCacheCachesMissingFinal(t *testing.T) {
	ctx := context.Background()
	fc, counting, _, mr := newFinalCacheFixture(t)
	key := model.ContestKey(3, 4)

	for i := 0; i < 2; i++ {
		got, err := fc.Get(ctx, model.FlagContestFinal, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 1, counting.reads)

	raw, err := mr.Get("final:is_contest_final:3:4")
	require.NoError(t, err)
	assert.Equal(t, cache.NullCacheValue, raw)
	assert.LessOrEqual(t, mr.TTL("final:is_contest_final:3:4"), 10*time.Second)
}

func TestFinalCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	fc, counting, mem, _ := newFinalCacheFixture(t)
	key := model.ProblemKey(1, 2)

	got, err := fc.Get(ctx, model.FlagProblemFinal, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	s := sub(0, 1, 2, 10, model.StatusOK, model.StatusOK)
	s.IsProblemFinal = true
	id := mem.PutSubmission(s)

	require.NoError(t, fc.Invalidate(ctx, model.FlagProblemFinal, key))
	got, err = fc.Get(ctx, model.FlagProblemFinal, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
	assert.Equal(t, 2, counting.reads)
}

func TestFinalCacheWithoutRedis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemoryStore()
	counting := &countingStore{SubmissionStore: mem}
	fc := NewFinalCache(counting, nil, 0, 0)

	for i := 0; i < 2; i++ {
		got, err := fc.Get(ctx, model.FlagProblemFinal, model.ProblemKey(1, 1))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 2, counting.reads)
	assert.NoError(t, fc.Invalidate(ctx, model.FlagProblemFinal, model.ProblemKey(1, 1)))

	_, err := fc.Get(ctx, model.FlagProblemFinal, model.ContestKey(1, 1))
	assert.Error(t, err)
}

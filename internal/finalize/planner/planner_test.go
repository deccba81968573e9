package planner

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceReader answers planner queries by scanning a slice and records the calls.
type sliceReader struct {
	cands []policy.Candidate
	calls []string
	err   error
}

func (r *sliceReader) match(c policy.Candidate, q model.CandidateQuery) bool {
	if q.Score != nil && c.Score != *q.Score {
		return false
	}
	if q.Rank != nil && (policy.Rule{TieBreak: q.Field}).StatusRank(c) != *q.Rank {
		return false
	}
	return true
}

func (r *sliceReader) FindMaxScore(_ context.Context, _ model.Key) (int64, bool, error) {
	r.calls = append(r.calls, "score")
	if r.err != nil {
		return 0, false, r.err
	}
	var best int64
	found := false
	for _, c := range r.cands {
		if !found || c.Score > best {
			best, found = c.Score, true
		}
	}
	return best, found, nil
}

func (r *sliceReader) FindBestStatusRank(_ context.Context, _ model.Key, q model.CandidateQuery) (int, bool, error) {
	r.calls = append(r.calls, "rank")
	best, found := 0, false
	for _, c := range r.cands {
		if !r.match(c, model.CandidateQuery{Score: q.Score}) {
			continue
		}
		rank := (policy.Rule{TieBreak: q.Field}).StatusRank(c)
		if !found || rank > best {
			best, found = rank, true
		}
	}
	return best, found, nil
}

func (r *sliceReader) FindMaxID(_ context.Context, _ model.Key, q model.CandidateQuery) (int64, bool, error) {
	r.calls = append(r.calls, "id")
	var best int64
	found := false
	for _, c := range r.cands {
		if r.match(c, q) && (!found || c.ID > best) {
			best, found = c.ID, true
		}
	}
	return best, found, nil
}

var testKey = model.ProblemKey(1, 1)

func TestFindWinnerQuerySequence(t *testing.T) {
	t.Parallel()

	cands := []policy.Candidate{
		{ID: 1, Score: 50, FullStatus: model.StatusOK, InitialStatus: model.StatusOK},
		{ID: 2, Score: 80, FullStatus: model.StatusJudgeError, InitialStatus: model.StatusOK},
		{ID: 3, Score: 80, FullStatus: model.StatusOK, InitialStatus: model.StatusWrongAnswer},
	}

	cases := []struct {
		name      string
		rule      policy.Rule
		wantCalls []string
		wantID    int64
	}{
		{name: "highest score", rule: policy.HighestScore, wantCalls: []string{"score", "rank", "id"}, wantID: 3},
		{name: "last compiling", rule: policy.LastCompiling, wantCalls: []string{"id"}, wantID: 3},
		{name: "initial status only", rule: policy.Rule{TieBreak: model.FieldInitial}, wantCalls: []string{"rank", "id"}, wantID: 2},
		{name: "initial with score", rule: policy.Rule{UseScore: true, TieBreak: model.FieldInitial}, wantCalls: []string{"score", "rank", "id"}, wantID: 2},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reader := &sliceReader{cands: cands}
			w, err := FindWinner(context.Background(), reader, testKey, tc.rule)
			require.NoError(t, err)
			assert.True(t, w.Found)
			assert.Equal(t, tc.wantID, w.ID)
			assert.Equal(t, tc.wantCalls, reader.calls)
		})
	}
}

func TestFindWinnerEmptyStopsAfterFirstStep(t *testing.T) {
	t.Parallel()

	reader := &sliceReader{}
	w, err := FindWinner(context.Background(), reader, testKey, policy.HighestScore)
	require.NoError(t, err)
	assert.False(t, w.Found)
	assert.Nil(t, w.IDPtr())
	assert.Equal(t, []string{"score"}, reader.calls)
}

func TestFindWinnerPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := FindWinner(context.Background(), &sliceReader{err: boom}, testKey, policy.HighestScore)
	assert.ErrorIs(t, err, boom)
}

func TestFindWinnerAgreesWithPolicy(t *testing.T) {
	t.Parallel()

	statuses := model.RankedStatuses()
	rules := []policy.Rule{
		policy.HighestScore,
		policy.LastCompiling,
		{TieBreak: model.FieldInitial},
		{UseScore: true, TieBreak: model.FieldInitial},
	}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 300; round++ {
		n := rng.Intn(8)
		cands := make([]policy.Candidate, 0, n)
		for i := 0; i < n; i++ {
			cands = append(cands, policy.Candidate{
				ID:            int64(i*3 + rng.Intn(3) + 1),
				Score:         int64(rng.Intn(4) * 10),
				FullStatus:    statuses[rng.Intn(len(statuses))],
				InitialStatus: statuses[rng.Intn(len(statuses))],
			})
		}
		for _, rule := range rules {
			wantID, wantFound := policy.Pick(cands, rule)
			got, err := FindWinner(context.Background(), &sliceReader{cands: cands}, testKey, rule)
			require.NoError(t, err)
			require.Equal(t, wantFound, got.Found, "rule %s round %d", rule, round)
			if wantFound {
				require.Equal(t, wantID, got.ID, "rule %s round %d", rule, round)
			}
		}
	}
}

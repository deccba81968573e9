package policy

import (
	"testing"

	"simoj/internal/finalize/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id, score int64, full, initial model.Status) Candidate {
	return Candidate{ID: id, Score: score, FullStatus: full, InitialStatus: initial}
}

func TestPick(t *testing.T) {
	t.Parallel()

	ok, wa, ce := model.StatusOK, model.StatusWrongAnswer, model.StatusCompilationError

	cases := []struct {
		name   string
		rule   Rule
		cands  []Candidate
		want   int64
		wantOK bool
	}{
		{
			name:  "highest score distinct scores",
			rule:  HighestScore,
			cands: []Candidate{cand(1, 10, ok, ok), cand(2, 30, ok, ok), cand(3, 5, ok, ok)},
			want:  2, wantOK: true,
		},
		{
			name:  "score tie broken by better status of later id",
			rule:  HighestScore,
			cands: []Candidate{cand(1, 10, ok, ok), cand(2, 30, wa, wa), cand(3, 30, ok, ok), cand(4, 5, ok, ok)},
			want:  3, wantOK: true,
		},
		{
			name:  "score tie broken by better status of earlier id",
			rule:  HighestScore,
			cands: []Candidate{cand(1, 10, ok, ok), cand(2, 30, ok, ok), cand(3, 30, wa, wa), cand(4, 5, ok, ok)},
			want:  2, wantOK: true,
		},
		{
			name:  "equal rank falls through to greatest id",
			rule:  HighestScore,
			cands: []Candidate{cand(1, 30, model.StatusTimeLimitExceeded, ok), cand(2, 30, wa, ok)},
			want:  2, wantOK: true,
		},
		{
			name:  "last compiling ignores score and status",
			rule:  LastCompiling,
			cands: []Candidate{cand(5, 100, ok, ok), cand(9, 0, ce, ce), cand(3, 50, ok, ok)},
			want:  9, wantOK: true,
		},
		{
			name:  "status only ignores score",
			rule:  Rule{TieBreak: model.FieldInitial},
			cands: []Candidate{cand(1, 100, ok, wa), cand(2, 0, wa, ok), cand(3, 50, ok, wa)},
			want:  2, wantOK: true,
		},
		{
			name:  "initial tie-break with score",
			rule:  Rule{UseScore: true, TieBreak: model.FieldInitial},
			cands: []Candidate{cand(1, 80, wa, ok), cand(2, 80, ok, wa)},
			want:  1, wantOK: true,
		},
		{
			name:   "empty set has no winner",
			rule:   HighestScore,
			cands:  nil,
			wantOK: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, found := Pick(tc.cands, tc.rule)
			assert.Equal(t, tc.wantOK, found)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestPickDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []Candidate{cand(3, 1, model.StatusOK, model.StatusOK), cand(1, 9, model.StatusOK, model.StatusOK)}
	snapshot := append([]Candidate(nil), in...)
	_, _ = Pick(in, HighestScore)
	assert.Equal(t, snapshot, in)
}

func TestPickIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := cand(1, 50, model.StatusOK, model.StatusOK)
	b := cand(2, 80, model.StatusJudgeError, model.StatusJudgeError)
	c := cand(3, 80, model.StatusOK, model.StatusOK)
	for _, order := range [][]Candidate{{a, b, c}, {c, b, a}, {b, a, c}} {
		got, ok := Pick(order, HighestScore)
		require.True(t, ok)
		assert.Equal(t, int64(3), got)
	}
}

func TestForMethod(t *testing.T) {
	t.Parallel()

	r, err := ForMethod(model.LastCompiling)
	require.NoError(t, err)
	assert.Equal(t, LastCompiling, r)

	r, err = ForMethod(model.WithHighestScore)
	require.NoError(t, err)
	assert.Equal(t, HighestScore, r)

	_, err = ForMethod("FIRST")
	assert.Error(t, err)
	assert.Equal(t, HighestScore, ProblemRule())
}

func TestInitialRule(t *testing.T) {
	t.Parallel()

	r, same, err := InitialRule(model.ContestProblem{FinalSelectingMethod: model.LastCompiling})
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, LastCompiling, r)

	r, same, err = InitialRule(model.ContestProblem{FinalSelectingMethod: model.WithHighestScore, RevealScore: true})
	require.NoError(t, err)
	assert.False(t, same)
	assert.Equal(t, Rule{UseScore: true, TieBreak: model.FieldInitial}, r)

	r, same, err = InitialRule(model.ContestProblem{FinalSelectingMethod: model.WithHighestScore})
	require.NoError(t, err)
	assert.False(t, same)
	assert.Equal(t, Rule{TieBreak: model.FieldInitial}, r)

	_, _, err = InitialRule(model.ContestProblem{})
	assert.Error(t, err)
}

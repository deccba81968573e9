// Package policy decides which candidate of a key wins without touching storage.
package policy

import (
	"fmt"

	"simoj/internal/finalize/model"
)

// Rule is an ordering over candidates. The winner has the greatest score when
// UseScore is set, then the best status rank of TieBreak when it is set, then
// the greatest id.
type Rule struct {
	UseScore bool
	TieBreak model.StatusField
}

var (
	// LastCompiling picks the most recent candidate.
	LastCompiling = Rule{}
	// HighestScore picks by score, then full verdict, then recency.
	HighestScore = Rule{UseScore: true, TieBreak: model.FieldFull}
)

// ProblemRule is the fixed rule of problem-level finals.
func ProblemRule() Rule {
	return HighestScore
}

// ForMethod maps a contest problem's selecting method to its full-final rule.
func ForMethod(method model.SelectingMethod) (Rule, error) {
	switch method {
	case model.LastCompiling:
		return LastCompiling, nil
	case model.WithHighestScore:
		return HighestScore, nil
	}
	return Rule{}, fmt.Errorf("unknown final selecting method %q", method)
}

// InitialRule returns the rule of the initial final. sameAsFull is true when
// the initial final is by definition the full final.
func InitialRule(cp model.ContestProblem) (rule Rule, sameAsFull bool, err error) {
	switch cp.FinalSelectingMethod {
	case model.LastCompiling:
		return LastCompiling, true, nil
	case model.WithHighestScore:
		if cp.RevealScore {
			return Rule{UseScore: true, TieBreak: model.FieldInitial}, false, nil
		}
		// The score is hidden before the reveal, so it must not steer the choice.
		return Rule{TieBreak: model.FieldInitial}, false, nil
	}
	return Rule{}, false, fmt.Errorf("unknown final selecting method %q", cp.FinalSelectingMethod)
}

// Candidate is the part of a submission a rule looks at.
type Candidate struct {
	ID            int64
	Score         int64
	FullStatus    model.Status
	InitialStatus model.Status
}

// CandidateFrom projects a submission.
func CandidateFrom(s *model.Submission) Candidate {
	return Candidate{
		ID:            s.ID,
		Score:         s.Score,
		FullStatus:    s.FullStatus,
		InitialStatus: s.InitialStatus,
	}
}

// StatusRank returns the rank of the status the rule tie-breaks on, or 0 when
// the rule has no status step.
func (r Rule) StatusRank(c Candidate) int {
	switch r.TieBreak {
	case model.FieldFull:
		return c.FullStatus.Rank()
	case model.FieldInitial:
		return c.InitialStatus.Rank()
	}
	return 0
}

// Better reports whether a beats b.
func (r Rule) Better(a, b Candidate) bool {
	if r.UseScore && a.Score != b.Score {
		return a.Score > b.Score
	}
	if ra, rb := r.StatusRank(a), r.StatusRank(b); ra != rb {
		return ra > rb
	}
	return a.ID > b.ID
}

// Pick returns the winning candidate id, or false for an empty set.
func Pick(candidates []Candidate, r Rule) (int64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if r.Better(c, best) {
			best = c
		}
	}
	return best.ID, true
}

func (r Rule) String() string {
	switch {
	case r == LastCompiling:
		return "last_compiling"
	case r.UseScore:
		return fmt.Sprintf("highest_score/%s", r.TieBreak)
	default:
		return fmt.Sprintf("status_only/%s", r.TieBreak)
	}
}

package model

import "fmt"

// Scope tells whether a key is problem-wide or contest-problem-wide.
type Scope string

const (
	ScopeProblem Scope = "problem"
	ScopeContest Scope = "contest"
)

// ScopeColumn returns the submissions column the scope filters on.
func (s Scope) ScopeColumn() string {
	if s == ScopeContest {
		return "contest_problem_id"
	}
	return "problem_id"
}

// Key identifies one (owner, problem) or (owner, contest problem) pair.
type Key struct {
	Scope   Scope `json:"scope"`
	OwnerID int64 `json:"owner_id"`
	ID      int64 `json:"id"`
}

// ProblemKey builds a problem-scoped key.
func ProblemKey(ownerID, problemID int64) Key {
	return Key{Scope: ScopeProblem, OwnerID: ownerID, ID: problemID}
}

// ContestKey builds a contest-problem-scoped key.
func ContestKey(ownerID, contestProblemID int64) Key {
	return Key{Scope: ScopeContest, OwnerID: ownerID, ID: contestProblemID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Scope, k.OwnerID, k.ID)
}

// Flag names one of the output columns the finalizers maintain.
type Flag string

const (
	FlagProblemFinal        Flag = "is_problem_final"
	FlagContestFinal        Flag = "is_contest_final"
	FlagContestInitialFinal Flag = "is_contest_initial_final"
)

// Column returns the submissions column of the flag.
func (f Flag) Column() string {
	return string(f)
}

// Scope returns the key scope the flag is unique within.
func (f Flag) Scope() Scope {
	if f == FlagProblemFinal {
		return ScopeProblem
	}
	return ScopeContest
}

// Valid reports whether f is one of the known flags.
func (f Flag) Valid() bool {
	switch f {
	case FlagProblemFinal, FlagContestFinal, FlagContestInitialFinal:
		return true
	}
	return false
}

// CandidateQuery narrows the candidate set of a key for one planner step.
// Score and Rank are applied only when set.
type CandidateQuery struct {
	Score *int64
	Field StatusField
	Rank  *int
}

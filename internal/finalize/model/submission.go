package model

import (
	"fmt"
	"strings"
)

// Submission is the slice of a submission row the finalizer reads and writes.
type Submission struct {
	ID               int64  `json:"id"`
	OwnerID          *int64 `json:"owner_id,omitempty"`
	ProblemID        int64  `json:"problem_id"`
	ContestProblemID *int64 `json:"contest_problem_id,omitempty"`
	Score            int64  `json:"score"`
	FullStatus       Status `json:"full_status"`
	InitialStatus    Status `json:"initial_status"`

	IsFinalCandidate      bool `json:"is_final_candidate"`
	IsProblemFinal        bool `json:"is_problem_final"`
	IsContestFinal        bool `json:"is_contest_final"`
	IsContestInitialFinal bool `json:"is_contest_initial_final"`
}

// FlagValue returns the current value of one of the final flags.
func (s *Submission) FlagValue(flag Flag) bool {
	switch flag {
	case FlagProblemFinal:
		return s.IsProblemFinal
	case FlagContestFinal:
		return s.IsContestFinal
	case FlagContestInitialFinal:
		return s.IsContestInitialFinal
	}
	return false
}

// SetFlagValue updates one of the final flags in place.
func (s *Submission) SetFlagValue(flag Flag, v bool) {
	switch flag {
	case FlagProblemFinal:
		s.IsProblemFinal = v
	case FlagContestFinal:
		s.IsContestFinal = v
	case FlagContestInitialFinal:
		s.IsContestInitialFinal = v
	}
}

// Matches reports whether the submission belongs to key, ignoring candidacy.
func (s *Submission) Matches(key Key) bool {
	if s.OwnerID == nil || *s.OwnerID != key.OwnerID {
		return false
	}
	switch key.Scope {
	case ScopeProblem:
		return s.ProblemID == key.ID
	case ScopeContest:
		return s.ContestProblemID != nil && *s.ContestProblemID == key.ID
	}
	return false
}

// SelectingMethod is the contest problem's final-selection policy.
type SelectingMethod string

const (
	LastCompiling    SelectingMethod = "LAST_COMPILING"
	WithHighestScore SelectingMethod = "WITH_HIGHEST_SCORE"
)

// ParseSelectingMethod accepts either spelling case.
func ParseSelectingMethod(raw string) (SelectingMethod, error) {
	m := SelectingMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case LastCompiling, WithHighestScore:
		return m, nil
	}
	return "", fmt.Errorf("unknown final selecting method %q", raw)
}

// ContestProblem carries the settings that govern contest finals.
type ContestProblem struct {
	ID                   int64           `json:"id"`
	FinalSelectingMethod SelectingMethod `json:"final_selecting_method"`
	RevealScore          bool            `json:"reveal_score"`
}

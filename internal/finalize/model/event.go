package model

import (
	"errors"
	"time"
)

// SubmissionEventType enumerates changes that require recomputation.
type SubmissionEventType string

const (
	SubmissionJudged           SubmissionEventType = "judged"
	SubmissionRejudged         SubmissionEventType = "rejudged"
	SubmissionCandidacyChanged SubmissionEventType = "candidacy_changed"
	SubmissionDeleted          SubmissionEventType = "deleted"
	SubmissionContestChanged   SubmissionEventType = "contest_changed"
)

// SubmissionEvent is published by the judging pipeline after it has written
// the verdict of a submission.
type SubmissionEvent struct {
	Type                     SubmissionEventType `json:"type"`
	SubmissionID             int64               `json:"submission_id"`
	OwnerID                  *int64              `json:"owner_id"`
	ProblemID                int64               `json:"problem_id"`
	ContestProblemID         *int64              `json:"contest_problem_id,omitempty"`
	PreviousContestProblemID *int64              `json:"previous_contest_problem_id,omitempty"`
	OccurredAt               time.Time           `json:"occurred_at"`
}

// Validate checks the fields every event type needs.
func (e *SubmissionEvent) Validate() error {
	switch e.Type {
	case SubmissionJudged, SubmissionRejudged, SubmissionCandidacyChanged, SubmissionDeleted, SubmissionContestChanged:
	case "":
		return errors.New("type is required")
	default:
		return errors.New("unknown event type")
	}
	if e.ProblemID <= 0 {
		return errors.New("problem_id is required")
	}
	return nil
}

// ContestProblemEventType enumerates contest problem changes the finalizer reacts to.
type ContestProblemEventType string

const ContestProblemSelectionChanged ContestProblemEventType = "selection_changed"

// ContestProblemEvent announces a change of a contest problem's selection settings.
type ContestProblemEvent struct {
	Type             ContestProblemEventType `json:"type"`
	ContestProblemID int64                   `json:"contest_problem_id"`
	OccurredAt       time.Time               `json:"occurred_at"`
}

// Validate checks the event is a selection change of a real contest problem.
func (e *ContestProblemEvent) Validate() error {
	if e.Type != ContestProblemSelectionChanged {
		return errors.New("unknown event type")
	}
	if e.ContestProblemID <= 0 {
		return errors.New("contest_problem_id is required")
	}
	return nil
}

// FinalChangedEvent is emitted after a committed recomputation moved a final flag.
type FinalChangedEvent struct {
	Flag       Flag      `json:"flag"`
	Scope      Scope     `json:"scope"`
	OwnerID    int64     `json:"owner_id"`
	KeyID      int64     `json:"key_id"`
	WinnerID   *int64    `json:"winner_id"`
	PreviousID *int64    `json:"previous_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

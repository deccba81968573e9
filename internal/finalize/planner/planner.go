// Package planner resolves a rule to a winner through narrow store reads:
// max score, then best status rank at that score, then max id among the rest.
package planner

import (
	"context"
	"fmt"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/policy"
)

// CandidateReader answers the three narrow queries over the candidates of a key.
// Each method reports found=false when no candidate matches.
type CandidateReader interface {
	FindMaxScore(ctx context.Context, key model.Key) (score int64, found bool, err error)
	FindBestStatusRank(ctx context.Context, key model.Key, q model.CandidateQuery) (rank int, found bool, err error)
	FindMaxID(ctx context.Context, key model.Key, q model.CandidateQuery) (id int64, found bool, err error)
}

// Winner is the outcome of a plan. Found is false when the key has no candidates.
type Winner struct {
	ID    int64
	Found bool
}

// IDPtr returns the winner id or nil.
func (w Winner) IDPtr() *int64 {
	if !w.Found {
		return nil
	}
	id := w.ID
	return &id
}

// FindWinner runs the query sequence for rule. All reads must go through the
// same transaction for the result to be consistent.
func FindWinner(ctx context.Context, reader CandidateReader, key model.Key, rule policy.Rule) (Winner, error) {
	q := model.CandidateQuery{Field: rule.TieBreak}

	if rule.UseScore {
		score, found, err := reader.FindMaxScore(ctx, key)
		if err != nil {
			return Winner{}, fmt.Errorf("find max score for %s: %w", key, err)
		}
		if !found {
			return Winner{}, nil
		}
		q.Score = &score
	}

	if rule.TieBreak != model.FieldNone {
		rank, found, err := reader.FindBestStatusRank(ctx, key, q)
		if err != nil {
			return Winner{}, fmt.Errorf("find best status for %s: %w", key, err)
		}
		if !found {
			return Winner{}, nil
		}
		q.Rank = &rank
	}

	id, found, err := reader.FindMaxID(ctx, key, q)
	if err != nil {
		return Winner{}, fmt.Errorf("find max id for %s: %w", key, err)
	}
	if !found {
		return Winner{}, nil
	}
	return Winner{ID: id, Found: true}, nil
}

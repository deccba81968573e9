package repository

import (
	"fmt"
	"strings"

	"simoj/internal/finalize/model"
)

// Statements are shared by the database/sql and gorm stores. They only use
// "?" placeholders and portable CASE expressions so MySQL and SQLite both run
// them unchanged.

const (
	submissionsTable     = "submissions"
	contestProblemsTable = "contest_problems"

	submissionColumns = "id, owner_id, problem_id, contest_problem_id, score, full_status, initial_status, " +
		"is_final_candidate, is_problem_final, is_contest_final, is_contest_initial_final"
)

var (
	fullRankExpr    = buildRankExpr(model.FieldFull)
	initialRankExpr = buildRankExpr(model.FieldInitial)
)

func buildRankExpr(field model.StatusField) string {
	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(field.Column())
	for _, s := range model.RankedStatuses() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", s, s.Rank())
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

func rankExpr(field model.StatusField) (string, error) {
	switch field {
	case model.FieldFull:
		return fullRankExpr, nil
	case model.FieldInitial:
		return initialRankExpr, nil
	}
	return "", fmt.Errorf("unsupported status field %q", field)
}

func keyFilter(key model.Key) (string, []interface{}) {
	return fmt.Sprintf("owner_id = ? AND %s = ?", key.Scope.ScopeColumn()), []interface{}{key.OwnerID, key.ID}
}

func candidateFilter(key model.Key, q model.CandidateQuery) (string, []interface{}, error) {
	where, args := keyFilter(key)
	where += " AND is_final_candidate = 1"
	if q.Score != nil {
		where += " AND score = ?"
		args = append(args, *q.Score)
	}
	if q.Rank != nil {
		expr, err := rankExpr(q.Field)
		if err != nil {
			return "", nil, err
		}
		where += " AND (" + expr + ") = ?"
		args = append(args, *q.Rank)
	}
	return where, args, nil
}

func maxScoreQuery(key model.Key) (string, []interface{}) {
	where, args, _ := candidateFilter(key, model.CandidateQuery{})
	return "SELECT MAX(score) FROM " + submissionsTable + " WHERE " + where, args
}

func bestRankQuery(key model.Key, q model.CandidateQuery) (string, []interface{}, error) {
	expr, err := rankExpr(q.Field)
	if err != nil {
		return "", nil, err
	}
	where, args, err := candidateFilter(key, model.CandidateQuery{Score: q.Score})
	if err != nil {
		return "", nil, err
	}
	return "SELECT MAX(" + expr + ") FROM " + submissionsTable + " WHERE " + where, args, nil
}

func maxIDQuery(key model.Key, q model.CandidateQuery) (string, []interface{}, error) {
	where, args, err := candidateFilter(key, q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT MAX(id) FROM " + submissionsTable + " WHERE " + where, args, nil
}

func validateFlag(flag model.Flag, key model.Key) error {
	if !flag.Valid() {
		return fmt.Errorf("unknown flag %q", flag)
	}
	if flag.Scope() != key.Scope {
		return fmt.Errorf("flag %s does not apply to %s keys", flag, key.Scope)
	}
	return nil
}

// setFlagQuery only matches rows whose value differs from the target so an
// unchanged winner results in zero affected rows.
func setFlagQuery(flag model.Flag, key model.Key, winner *int64) (string, []interface{}, error) {
	if err := validateFlag(flag, key); err != nil {
		return "", nil, err
	}
	col := flag.Column()
	where, args := keyFilter(key)
	if winner == nil {
		return fmt.Sprintf("UPDATE %s SET %s = 0 WHERE %s AND %s = 1", submissionsTable, col, where, col), args, nil
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s = CASE WHEN id = ? THEN 1 ELSE 0 END WHERE %s AND ((id = ? AND %s = 0) OR (id <> ? AND %s = 1))",
		submissionsTable, col, where, col, col,
	)
	full := append([]interface{}{*winner}, args...)
	full = append(full, *winner, *winner)
	return query, full, nil
}

func countFlaggedQuery(flag model.Flag, key model.Key) (string, []interface{}, error) {
	if err := validateFlag(flag, key); err != nil {
		return "", nil, err
	}
	where, args := keyFilter(key)
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s AND %s = 1", submissionsTable, where, flag.Column()), args, nil
}

func findFinalQuery(flag model.Flag, key model.Key) (string, []interface{}, error) {
	if err := validateFlag(flag, key); err != nil {
		return "", nil, err
	}
	where, args := keyFilter(key)
	return fmt.Sprintf("SELECT MAX(id) FROM %s WHERE %s AND %s = 1", submissionsTable, where, flag.Column()), args, nil
}

const (
	listContestOwnersQuery = "SELECT DISTINCT owner_id FROM " + submissionsTable +
		" WHERE contest_problem_id = ? AND owner_id IS NOT NULL ORDER BY owner_id"
	getContestProblemQuery = "SELECT id, final_selecting_method, reveal_score FROM " + contestProblemsTable + " WHERE id = ?"
	getSubmissionQuery     = "SELECT " + submissionColumns + " FROM " + submissionsTable + " WHERE id = ?"
	deleteSubmissionQuery  = "DELETE FROM " + submissionsTable + " WHERE id = ?"
	setCandidateQuery      = "UPDATE " + submissionsTable + " SET is_final_candidate = ? WHERE id = ?"
)

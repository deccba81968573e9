package repository

import (
	"context"
	"database/sql"
	"fmt"

	"simoj/internal/common/db"
	"simoj/internal/finalize/model"
)

// MySQLSubmissionStore implements SubmissionStore on the shared db layer.
type MySQLSubmissionStore struct {
	provider db.Provider
}

// NewMySQLSubmissionStore creates a store reading the current database from provider.
func NewMySQLSubmissionStore(provider db.Provider) *MySQLSubmissionStore {
	return &MySQLSubmissionStore{provider: provider}
}

// BeginTx opens a serializable transaction.
func (s *MySQLSubmissionStore) BeginTx(ctx context.Context) (SubmissionTx, error) {
	database, err := db.CurrentDatabase(s.provider)
	if err != nil {
		return nil, err
	}
	tx, err := database.BeginTx(ctx, &db.TxOptions{Isolation: db.IsolationSerializable})
	if err != nil {
		return nil, classifyMySQLError(err)
	}
	return &mysqlSubmissionTx{tx: tx}, nil
}

// FindFinal reads the committed holder of flag for key.
func (s *MySQLSubmissionStore) FindFinal(ctx context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	query, args, err := findFinalQuery(flag, key)
	if err != nil {
		return 0, false, err
	}
	q, err := db.GetProviderQuerier(s.provider, nil)
	if err != nil {
		return 0, false, err
	}
	return queryNullInt(ctx, q, query, args)
}

// ListContestOwners returns distinct owners of a contest problem's submissions.
func (s *MySQLSubmissionStore) ListContestOwners(ctx context.Context, contestProblemID int64) ([]int64, error) {
	q, err := db.GetProviderQuerier(s.provider, nil)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, listContestOwnersQuery, contestProblemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

type mysqlSubmissionTx struct {
	tx db.Transaction
}

func (t *mysqlSubmissionTx) FindMaxScore(ctx context.Context, key model.Key) (int64, bool, error) {
	query, args := maxScoreQuery(key)
	return queryNullInt(ctx, t.tx, query, args)
}

func (t *mysqlSubmissionTx) FindBestStatusRank(ctx context.Context, key model.Key, cq model.CandidateQuery) (int, bool, error) {
	query, args, err := bestRankQuery(key, cq)
	if err != nil {
		return 0, false, err
	}
	rank, found, err := queryNullInt(ctx, t.tx, query, args)
	return int(rank), found, err
}

func (t *mysqlSubmissionTx) FindMaxID(ctx context.Context, key model.Key, cq model.CandidateQuery) (int64, bool, error) {
	query, args, err := maxIDQuery(key, cq)
	if err != nil {
		return 0, false, err
	}
	return queryNullInt(ctx, t.tx, query, args)
}

func (t *mysqlSubmissionTx) GetContestProblem(ctx context.Context, id int64) (*model.ContestProblem, error) {
	var (
		cp     model.ContestProblem
		method string
	)
	err := t.tx.QueryRow(ctx, getContestProblemQuery, id).Scan(&cp.ID, &method, &cp.RevealScore)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrContestProblemNotFound
		}
		return nil, classifyMySQLError(err)
	}
	if cp.FinalSelectingMethod, err = model.ParseSelectingMethod(method); err != nil {
		return nil, fmt.Errorf("contest problem %d: %w", id, err)
	}
	return &cp, nil
}

func (t *mysqlSubmissionTx) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	var (
		sub              model.Submission
		owner, contestID sql.NullInt64
		full, initial    string
	)
	err := t.tx.QueryRow(ctx, getSubmissionQuery, id).Scan(
		&sub.ID, &owner, &sub.ProblemID, &contestID, &sub.Score, &full, &initial,
		&sub.IsFinalCandidate, &sub.IsProblemFinal, &sub.IsContestFinal, &sub.IsContestInitialFinal,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, classifyMySQLError(err)
	}
	if owner.Valid {
		sub.OwnerID = &owner.Int64
	}
	if contestID.Valid {
		sub.ContestProblemID = &contestID.Int64
	}
	sub.FullStatus = model.Status(full)
	sub.InitialStatus = model.Status(initial)
	return &sub, nil
}

func (t *mysqlSubmissionTx) DeleteSubmission(ctx context.Context, id int64) error {
	res, err := t.tx.Exec(ctx, deleteSubmissionQuery, id)
	if err != nil {
		return classifyMySQLError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (t *mysqlSubmissionTx) SetFinalCandidate(ctx context.Context, id int64, candidate bool) error {
	if _, err := t.tx.Exec(ctx, setCandidateQuery, candidate, id); err != nil {
		return classifyMySQLError(err)
	}
	return nil
}

func (t *mysqlSubmissionTx) SetFlagExclusive(ctx context.Context, flag model.Flag, key model.Key, winner *int64) (int64, error) {
	query, args, err := setFlagQuery(flag, key, winner)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, classifyMySQLError(err)
	}
	return res.RowsAffected()
}

func (t *mysqlSubmissionTx) FindFinal(ctx context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	query, args, err := findFinalQuery(flag, key)
	if err != nil {
		return 0, false, err
	}
	return queryNullInt(ctx, t.tx, query, args)
}

func (t *mysqlSubmissionTx) CountFlagged(ctx context.Context, flag model.Flag, key model.Key) (int64, error) {
	query, args, err := countFlaggedQuery(flag, key)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, classifyMySQLError(err)
	}
	return n, nil
}

func (t *mysqlSubmissionTx) Commit() error {
	return classifyMySQLError(t.tx.Commit())
}

func (t *mysqlSubmissionTx) Rollback() error {
	return t.tx.Rollback()
}

// queryNullInt scans a single nullable integer aggregate.
func queryNullInt(ctx context.Context, q db.Querier, query string, args []interface{}) (int64, bool, error) {
	var v sql.NullInt64
	if err := q.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, false, classifyMySQLError(err)
	}
	return v.Int64, v.Valid, nil
}

func classifyMySQLError(err error) error {
	if err == nil {
		return nil
	}
	if db.IsSerializationConflict(err) {
		return fmt.Errorf("%w: %w", ErrSerializationConflict, err)
	}
	return err
}

var _ SubmissionStore = (*MySQLSubmissionStore)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"simoj/internal/common/db"
	"simoj/internal/finalize/model"

	"github.com/mattn/go-sqlite3"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SubmissionRow is the gorm mapping of the submissions table.
type SubmissionRow struct {
	ID                    int64  `gorm:"primaryKey;autoIncrement"`
	OwnerID               *int64 `gorm:"index:idx_owner_problem,priority:1;index:idx_owner_contest_problem,priority:1"`
	ProblemID             int64  `gorm:"not null;index:idx_owner_problem,priority:2"`
	ContestProblemID      *int64 `gorm:"index:idx_owner_contest_problem,priority:2"`
	Score                 int64  `gorm:"not null;default:0"`
	FullStatus            string `gorm:"size:32;not null;default:pending"`
	InitialStatus         string `gorm:"size:32;not null;default:pending"`
	IsFinalCandidate      bool   `gorm:"not null;default:false"`
	IsProblemFinal        bool   `gorm:"not null;default:false"`
	IsContestFinal        bool   `gorm:"not null;default:false"`
	IsContestInitialFinal bool   `gorm:"not null;default:false"`
}

func (SubmissionRow) TableName() string { return submissionsTable }

// ContestProblemRow is the gorm mapping of the contest_problems table.
type ContestProblemRow struct {
	ID                   int64  `gorm:"primaryKey"`
	FinalSelectingMethod string `gorm:"size:32;not null"`
	RevealScore          bool   `gorm:"not null;default:false"`
}

func (ContestProblemRow) TableName() string { return contestProblemsTable }

// GormConfig selects the gorm dialect.
type GormConfig struct {
	// Driver is "sqlite" or "mysql".
	Driver string `yaml:"driver"`
	// DSN is a file path or sqlite URI for sqlite, a go-sql-driver DSN for mysql.
	DSN string `yaml:"dsn"`
	// LogSQL turns on gorm's statement logger.
	LogSQL bool `yaml:"logSQL"`
}

// OpenGorm opens a gorm handle for cfg. SQLite handles are limited to one
// connection since SQLite allows a single writer.
func OpenGorm(cfg GormConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.LogSQL {
		gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = gormmysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

// GormSubmissionStore implements SubmissionStore with gorm.
type GormSubmissionStore struct {
	db *gorm.DB
}

// NewGormSubmissionStore wraps an open gorm handle.
func NewGormSubmissionStore(gdb *gorm.DB) *GormSubmissionStore {
	return &GormSubmissionStore{db: gdb}
}

// AutoMigrate creates or updates the two tables.
func (s *GormSubmissionStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SubmissionRow{}, &ContestProblemRow{})
}

// SaveSubmission inserts or replaces a submission row. Used by seeding tools and tests.
func (s *GormSubmissionStore) SaveSubmission(ctx context.Context, sub *model.Submission) error {
	row := toSubmissionRow(sub)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return classifyGormError(err)
	}
	sub.ID = row.ID
	return nil
}

// SaveContestProblem inserts or replaces a contest problem row.
func (s *GormSubmissionStore) SaveContestProblem(ctx context.Context, cp *model.ContestProblem) error {
	row := ContestProblemRow{ID: cp.ID, FinalSelectingMethod: string(cp.FinalSelectingMethod), RevealScore: cp.RevealScore}
	return classifyGormError(s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error)
}

// BeginTx opens a serializable transaction.
func (s *GormSubmissionStore) BeginTx(ctx context.Context) (SubmissionTx, error) {
	tx := s.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: sql.LevelSerializable})
	if tx.Error != nil {
		return nil, classifyGormError(tx.Error)
	}
	return &gormSubmissionTx{tx: tx}, nil
}

// FindFinal reads the committed holder of flag for key.
func (s *GormSubmissionStore) FindFinal(ctx context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	query, args, err := findFinalQuery(flag, key)
	if err != nil {
		return 0, false, err
	}
	return gormNullInt(s.db.WithContext(ctx), query, args)
}

// ListContestOwners returns distinct owners of a contest problem's submissions.
func (s *GormSubmissionStore) ListContestOwners(ctx context.Context, contestProblemID int64) ([]int64, error) {
	var owners []int64
	if err := s.db.WithContext(ctx).Raw(listContestOwnersQuery, contestProblemID).Scan(&owners).Error; err != nil {
		return nil, classifyGormError(err)
	}
	return owners, nil
}

type gormSubmissionTx struct {
	tx *gorm.DB
}

func (t *gormSubmissionTx) FindMaxScore(_ context.Context, key model.Key) (int64, bool, error) {
	query, args := maxScoreQuery(key)
	return gormNullInt(t.tx, query, args)
}

func (t *gormSubmissionTx) FindBestStatusRank(_ context.Context, key model.Key, cq model.CandidateQuery) (int, bool, error) {
	query, args, err := bestRankQuery(key, cq)
	if err != nil {
		return 0, false, err
	}
	rank, found, err := gormNullInt(t.tx, query, args)
	return int(rank), found, err
}

func (t *gormSubmissionTx) FindMaxID(_ context.Context, key model.Key, cq model.CandidateQuery) (int64, bool, error) {
	query, args, err := maxIDQuery(key, cq)
	if err != nil {
		return 0, false, err
	}
	return gormNullInt(t.tx, query, args)
}

func (t *gormSubmissionTx) GetContestProblem(_ context.Context, id int64) (*model.ContestProblem, error) {
	var row ContestProblemRow
	if err := t.tx.Take(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestProblemNotFound
		}
		return nil, classifyGormError(err)
	}
	method, err := model.ParseSelectingMethod(row.FinalSelectingMethod)
	if err != nil {
		return nil, fmt.Errorf("contest problem %d: %w", id, err)
	}
	return &model.ContestProblem{ID: row.ID, FinalSelectingMethod: method, RevealScore: row.RevealScore}, nil
}

func (t *gormSubmissionTx) GetSubmission(_ context.Context, id int64) (*model.Submission, error) {
	var row SubmissionRow
	if err := t.tx.Take(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, classifyGormError(err)
	}
	return fromSubmissionRow(&row), nil
}

func (t *gormSubmissionTx) DeleteSubmission(_ context.Context, id int64) error {
	res := t.tx.Delete(&SubmissionRow{}, id)
	if res.Error != nil {
		return classifyGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (t *gormSubmissionTx) SetFinalCandidate(_ context.Context, id int64, candidate bool) error {
	return classifyGormError(t.tx.Exec(setCandidateQuery, candidate, id).Error)
}

func (t *gormSubmissionTx) SetFlagExclusive(_ context.Context, flag model.Flag, key model.Key, winner *int64) (int64, error) {
	query, args, err := setFlagQuery(flag, key, winner)
	if err != nil {
		return 0, err
	}
	res := t.tx.Exec(query, args...)
	if res.Error != nil {
		return 0, classifyGormError(res.Error)
	}
	return res.RowsAffected, nil
}

func (t *gormSubmissionTx) FindFinal(_ context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	query, args, err := findFinalQuery(flag, key)
	if err != nil {
		return 0, false, err
	}
	return gormNullInt(t.tx, query, args)
}

func (t *gormSubmissionTx) CountFlagged(_ context.Context, flag model.Flag, key model.Key) (int64, error) {
	query, args, err := countFlaggedQuery(flag, key)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := t.tx.Raw(query, args...).Scan(&n).Error; err != nil {
		return 0, classifyGormError(err)
	}
	return n, nil
}

func (t *gormSubmissionTx) Commit() error {
	return classifyGormError(t.tx.Commit().Error)
}

func (t *gormSubmissionTx) Rollback() error {
	return t.tx.Rollback().Error
}

func gormNullInt(gdb *gorm.DB, query string, args []interface{}) (int64, bool, error) {
	var v sql.NullInt64
	if err := gdb.Raw(query, args...).Row().Scan(&v); err != nil {
		return 0, false, classifyGormError(err)
	}
	return v.Int64, v.Valid, nil
}

// classifyGormError maps SQLite busy/locked and MySQL deadlock errors onto
// ErrSerializationConflict.
func classifyGormError(err error) error {
	if err == nil {
		return nil
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %w", ErrSerializationConflict, err)
	}
	if db.IsSerializationConflict(err) {
		return fmt.Errorf("%w: %w", ErrSerializationConflict, err)
	}
	return err
}

func toSubmissionRow(sub *model.Submission) SubmissionRow {
	return SubmissionRow{
		ID:                    sub.ID,
		OwnerID:               sub.OwnerID,
		ProblemID:             sub.ProblemID,
		ContestProblemID:      sub.ContestProblemID,
		Score:                 sub.Score,
		FullStatus:            string(sub.FullStatus),
		InitialStatus:         string(sub.InitialStatus),
		IsFinalCandidate:      sub.IsFinalCandidate,
		IsProblemFinal:        sub.IsProblemFinal,
		IsContestFinal:        sub.IsContestFinal,
		IsContestInitialFinal: sub.IsContestInitialFinal,
	}
}

func fromSubmissionRow(row *SubmissionRow) *model.Submission {
	return &model.Submission{
		ID:                    row.ID,
		OwnerID:               row.OwnerID,
		ProblemID:             row.ProblemID,
		ContestProblemID:      row.ContestProblemID,
		Score:                 row.Score,
		FullStatus:            model.Status(row.FullStatus),
		InitialStatus:         model.Status(row.InitialStatus),
		IsFinalCandidate:      row.IsFinalCandidate,
		IsProblemFinal:        row.IsProblemFinal,
		IsContestFinal:        row.IsContestFinal,
		IsContestInitialFinal: row.IsContestInitialFinal,
	}
}

var _ SubmissionStore = (*GormSubmissionStore)(nil)

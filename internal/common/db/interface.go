package db

import (
	"context"
	"database/sql"
	"time"
)

// Database is the connection-pool level handle used by repositories.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction started with default options.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)
	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Transaction is an open database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows is the cursor returned by Query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the single-row result returned by QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result is the outcome of Exec.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// IsolationLevel mirrors the database/sql isolation levels the services use.
type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// TxOptions configures BeginTx.
type TxOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
}

// ConvertTxOptions maps TxOptions to database/sql options; nil stays nil.
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	out := &sql.TxOptions{ReadOnly: opts.ReadOnly}
	switch opts.Isolation {
	case IsolationReadCommitted:
		out.Isolation = sql.LevelReadCommitted
	case IsolationRepeatableRead:
		out.Isolation = sql.LevelRepeatableRead
	case IsolationSerializable:
		out.Isolation = sql.LevelSerializable
	default:
		out.Isolation = sql.LevelDefault
	}
	return out
}

// Stats is a trimmed view of sql.DBStats.
type Stats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// ConvertSQLStats copies the relevant fields from sql.DBStats.
func ConvertSQLStats(s sql.DBStats) Stats {
	return Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

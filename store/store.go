// Package store wraps the database handle the engine executes against.
// It exposes the Querier interface shared by DB and Tx so that every
// constrained query can run either directly or inside a caller-supplied
// transaction.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"relmap/observability"
)

// Querier is the common interface for DB and Tx. Constraint execution
// accepts this so that eager loads during a write path observe the same
// snapshot as the write itself.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Dialect() Dialect
}

// DB wraps *sql.DB with a dialect, query logging, and metrics.
type DB struct {
	raw     *sql.DB
	dialect Dialect
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a DB wrapper.
type Option func(*DB)

// WithLogger installs a query logger. Queries are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) { db.logger = logger }
}

// WithMetrics installs query metrics recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(db *DB) { db.metrics = m }
}

// New wraps an open *sql.DB with the given dialect.
func New(raw *sql.DB, dialect Dialect, opts ...Option) *DB {
	db := &DB{raw: raw, dialect: dialect}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Raw returns the underlying *sql.DB.
func (db *DB) Raw() *sql.DB { return db.raw }

// Dialect returns the SQL dialect in use.
func (db *DB) Dialect() Dialect { return db.dialect }

// Close closes the underlying handle.
func (db *DB) Close() error { return db.raw.Close() }

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := db.raw.QueryContext(ctx, query, args...)
	db.observe(ctx, "query", query, start, err)
	return rows, err
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := db.raw.ExecContext(ctx, query, args...)
	db.observe(ctx, "exec", query, start, err)
	return result, err
}

func (db *DB) observe(ctx context.Context, op, query string, start time.Time, err error) {
	elapsed := time.Since(start)
	if db.logger != nil {
		if err != nil {
			db.logger.ErrorContext(ctx, "store query failed",
				slog.String("op", op),
				slog.String("query", query),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			db.logger.DebugContext(ctx, "store query",
				slog.String("op", op),
				slog.String("query", query),
				slog.Duration("elapsed", elapsed),
			)
		}
	}
	if db.metrics != nil {
		db.metrics.RecordQuery(ctx, op, elapsed, err)
	}
}

// Begin starts a transaction carrying the same dialect, logger, and
// metrics as the DB.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx, db: db}, nil
}

// Transaction executes fn within a transaction. The transaction commits
// when fn returns nil and rolls back when fn returns an error or panics.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tx wraps *sql.Tx and satisfies Querier.
type Tx struct {
	raw *sql.Tx
	db  *DB
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := tx.raw.QueryContext(ctx, query, args...)
	tx.db.observe(ctx, "query", query, start, err)
	return rows, err
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := tx.raw.ExecContext(ctx, query, args...)
	tx.db.observe(ctx, "exec", query, start, err)
	return result, err
}

// Dialect returns the SQL dialect in use.
func (tx *Tx) Dialect() Dialect { return tx.db.dialect }

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.raw.Commit() }

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error { return tx.raw.Rollback() }

// Package dbexec provides database query execution abstractions: a plain
// executor, request transactions with per-request settings, and savepoints.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Beginner opens request transactions.
type Beginner interface {
	BeginTx(ctx context.Context, readOnly bool) (TxExecutor, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db       *sql.DB
	settings Settings
}

// NewStandardExecutor creates an executor over db. Settings are applied to
// every transaction it begins.
func NewStandardExecutor(db *sql.DB, settings Settings) *StandardExecutor {
	return &StandardExecutor{db: db, settings: settings}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a request transaction and applies the configured settings to it.
func (e *StandardExecutor) BeginTx(ctx context.Context, readOnly bool) (TxExecutor, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := e.settings.apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

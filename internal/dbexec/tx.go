package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TxExecutor is a request transaction. Statements run sequentially on one
// connection; Savepoint scopes a nested checkpoint inside it.
type TxExecutor interface {
	QueryExecutor
	Savepoint(ctx context.Context) (NestedTx, error)
	Commit() error
	Rollback() error
}

// NestedTx is a savepoint handle. Exactly one of Release or Rollback should be called.
type NestedTx interface {
	Name() string
	Release(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type sqlTx struct {
	tx *sql.Tx
}

// NewTx wraps an already-open transaction.
func NewTx(tx *sql.Tx) TxExecutor {
	return &sqlTx{tx: tx}
}

func (t *sqlTx) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

func (t *sqlTx) Savepoint(ctx context.Context) (NestedTx, error) {
	name := "graphql_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := t.tx.ExecContext(ctx, "savepoint "+pq.QuoteIdentifier(name)); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}
	return &savepoint{tx: t.tx, name: name}, nil
}

type savepoint struct {
	tx   *sql.Tx
	name string
	done bool
}

func (s *savepoint) Name() string { return s.name }

func (s *savepoint) Release(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if _, err := s.tx.ExecContext(ctx, "release savepoint "+pq.QuoteIdentifier(s.name)); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (s *savepoint) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if _, err := s.tx.ExecContext(ctx, "rollback to savepoint "+pq.QuoteIdentifier(s.name)); err != nil {
		return fmt.Errorf("failed to roll back to savepoint: %w", err)
	}
	return nil
}

package mutation

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNoRowsAffected is returned when an update or delete matched nothing.
	ErrNoRowsAffected = errors.New("no rows affected")
	// ErrMismatchedType is returned when a node id belongs to another type.
	ErrMismatchedType = errors.New("mismatched type in node id")
	// ErrInvalidIdentifier is returned when a node id does not carry one value per key column.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

const (
	CodeUniqueViolation     = "unique_violation"
	CodeForeignKeyViolation = "foreign_key_violation"
	CodeNotNullViolation    = "not_null_violation"
	CodeCheckViolation      = "check_violation"
	CodeAccessDenied        = "access_denied"
	CodeNoRowsAffected      = "no_rows_affected"
	CodeInvalidInput        = "invalid_input"
)

// Error is a mutation failure carrying a stable code in its GraphQL extensions.
type Error struct {
	Code     string
	Message  string
	SQLState string
	Err      error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Extensions implements graphql-go's extended error contract.
func (e *Error) Extensions() map[string]any {
	ext := map[string]any{"code": e.Code}
	if e.SQLState != "" {
		ext["sqlstate"] = e.SQLState
	}
	return ext
}

// NoRowsError reports that a statement matched nothing. It is also used when a
// client-supplied identifier cannot match any row.
func NoRowsError(verb, collection string) error {
	return &Error{
		Code:    CodeNoRowsAffected,
		Message: fmt.Sprintf("No values were %s in collection '%s' because no values you asked to %s were found.", pastTense(verb), collection, verb),
		Err:     fmt.Errorf("%w: %s", ErrNoRowsAffected, collection),
	}
}

func pastTense(verb string) string {
	switch verb {
	case "update":
		return "updated"
	case "delete":
		return "deleted"
	default:
		return verb + "d"
	}
}

// InvalidInput wraps a client input problem.
func InvalidInput(err error) error {
	return &Error{Code: CodeInvalidInput, Message: err.Error(), Err: err}
}

// Normalize maps well-known Postgres errors onto coded errors and returns
// everything else unchanged.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	var code string
	switch pgErr.Code {
	case "23505":
		code = CodeUniqueViolation
	case "23503":
		code = CodeForeignKeyViolation
	case "23502":
		code = CodeNotNullViolation
	case "23514":
		code = CodeCheckViolation
	case "42501":
		code = CodeAccessDenied
	default:
		return err
	}
	return &Error{Code: code, Message: pgErr.Message, SQLState: pgErr.Code, Err: err}
}

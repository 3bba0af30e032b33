// Package mutation runs data-modifying statements inside savepoints and
// shapes the affected rows into GraphQL payloads.
//
// Each mutation field moves through
//
//	START -> SAVEPOINT -> MUTATE -> CAPTURE -> SELECT_SHAPE -> RELEASE
//
// and falls to ROLLBACK from any state after SAVEPOINT. The affected rows are
// captured as text by the mutating statement and re-read by a second
// statement, so computed columns in the payload observe the mutation.
package mutation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/pgsql"
)

// State is a step of the mutation state machine.
type State string

const (
	StateStart       State = "START"
	StateSavepoint   State = "SAVEPOINT"
	StateMutate      State = "MUTATE"
	StateCapture     State = "CAPTURE"
	StateSelectShape State = "SELECT_SHAPE"
	StateRelease     State = "RELEASE"
	StateRollback    State = "ROLLBACK"
)

// StatementKind distinguishes table statements from function calls.
type StatementKind uint8

const (
	// KindModify is an insert, update or delete; "returning *" is appended.
	KindModify StatementKind = iota
	// KindCall is a function call used as a row source.
	KindCall
)

// Mutation describes one mutation field.
type Mutation struct {
	// Field is the GraphQL field name, used in spans and logs.
	Field string
	Kind  StatementKind
	// Verb is "create", "update", "delete" or "call"; it only shapes messages.
	Verb       string
	Collection string
	Statement  pgsql.Fragment
	// Class is the row type of the affected rows; nil for scalar function results.
	Class *catalog.Class
	// Type is the scalar result type when Class is nil. Leaving both nil
	// skips SELECT_SHAPE, as for functions returning void.
	Type       *catalog.Type
	TypeName   string
	PrimaryKey []*catalog.Attribute
	// Set is true when the statement may affect several rows and the payload is a list.
	Set bool
	// RequireRows turns an empty capture into a no-rows error.
	RequireRows bool
	// Selection lists what the payload needs from each captured row.
	Selection *assembler.ResolveData
}

// Result is the outcome of a successful mutation.
type Result struct {
	Rows  int
	Value any
}

// Options configures an Executor.
type Options struct {
	Logger *slog.Logger
	// OnTransition observes every state change.
	OnTransition func(field string, from, to State)
}

// Executor runs mutations.
type Executor struct {
	asm          *assembler.Assembler
	logger       *slog.Logger
	tracer       trace.Tracer
	onTransition func(field string, from, to State)
}

// New creates an Executor that shapes payloads with asm.
func New(asm *assembler.Assembler, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		asm:          asm,
		logger:       logger,
		tracer:       otel.Tracer("pg-graphql/mutation"),
		onTransition: opts.OnTransition,
	}
}

type run struct {
	e     *Executor
	m     *Mutation
	span  trace.Span
	state State
}

func (r *run) to(next State) {
	if r.e.onTransition != nil {
		r.e.onTransition(r.m.Field, r.state, next)
	}
	r.span.AddEvent(string(next))
	r.state = next
}

// Execute runs m inside a savepoint of tx. On failure the savepoint is rolled
// back and tx stays usable for sibling mutation fields.
func (e *Executor) Execute(ctx context.Context, tx dbexec.TxExecutor, m Mutation) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "graphql.mutation.execute", trace.WithAttributes(
		attribute.String("graphql.field.name", m.Field),
		attribute.String("db.collection.name", m.Collection),
		attribute.String("graphql.mutation.verb", m.Verb),
	))
	defer span.End()
	r := &run{e: e, m: &m, span: span, state: StateStart}

	r.to(StateSavepoint)
	sp, err := tx.Savepoint(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	defer func() {
		if err == nil {
			return
		}
		r.to(StateRollback)
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			e.logger.Error("failed to roll back mutation savepoint",
				slog.String("field", m.Field),
				slog.String("savepoint", sp.Name()),
				slog.String("error", rbErr.Error()),
			)
		}
		err = Normalize(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}()

	r.to(StateMutate)
	captured, err := r.capture(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("db.rows_affected", len(captured)))
	if m.RequireRows && len(captured) == 0 {
		return Result{}, NoRowsError(m.Verb, m.Collection)
	}

	var value any
	if m.Class != nil || m.Type != nil {
		r.to(StateSelectShape)
		if value, err = r.shape(ctx, tx, captured); err != nil {
			return Result{}, err
		}
	}

	r.to(StateRelease)
	if err := sp.Release(ctx); err != nil {
		return Result{}, err
	}
	return Result{Rows: len(captured), Value: value}, nil
}

// capture executes the statement and reads back every affected row as text.
func (r *run) capture(ctx context.Context, tx dbexec.TxExecutor) ([]sql.NullString, error) {
	alias := pgsql.NewAlias("mutation")
	var stmt pgsql.Fragment
	switch r.m.Kind {
	case KindModify:
		stmt = pgsql.Concat("with ", alias, " as (", r.m.Statement, " returning *) select (", alias, ")::text from ", alias)
	case KindCall:
		stmt = pgsql.Concat("select (", alias, ")::text from ", r.m.Statement, " as ", alias)
	default:
		return nil, fmt.Errorf("unknown statement kind %d", r.m.Kind)
	}
	query, args, err := pgsql.Compile(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.to(StateCapture)
	var captured []sql.NullString
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		captured = append(captured, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return captured, nil
}

// shape re-reads the captured rows through the query assembler.
func (r *run) shape(ctx context.Context, tx dbexec.TxExecutor, captured []sql.NullString) (any, error) {
	root, err := r.payloadField(captured)
	if err != nil {
		return nil, err
	}
	stmt, err := r.e.asm.Assemble(root, pgsql.Fragment{})
	if err != nil {
		return nil, err
	}
	query, args, err := pgsql.Compile(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var data sql.NullString
	if rows.Next() {
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !data.Valid {
		return nil, nil
	}
	return r.e.asm.Decode(root, []byte(data.String))
}

func (r *run) payloadField(captured []sql.NullString) (assembler.Field, error) {
	m := r.m
	var t *catalog.Type
	if m.Class != nil {
		ct, ok := r.e.asm.Registry().Catalog().Type(m.Class.TypeID)
		if !ok {
			return assembler.Field{}, fmt.Errorf("row type of %s: %w", m.Class.Name, assembler.ErrUnmappableReturnType)
		}
		t = ct
	} else if m.Type != nil {
		t = m.Type
	} else {
		return assembler.Field{}, fmt.Errorf("mutation %s: %w", m.Field, assembler.ErrUnmappableReturnType)
	}

	str := pgsql.NewAlias("str")
	typeIdent := pgsql.Ident(t.NamespaceName, t.Name)
	param := pgsql.Value(pq.Array(captured))
	src := &assembler.Source{
		Class:      m.Class,
		TypeName:   m.TypeName,
		PrimaryKey: m.PrimaryKey,
	}
	var from pgsql.Fragment
	if m.Class != nil {
		from = pgsql.Concat("(select (", str, "::", typeIdent, ").* from unnest(", param, "::text[]) as ", str, ")")
		src.AddNullCase = m.Kind == KindCall
	} else {
		from = pgsql.Concat("(select (", str, ")::", typeIdent, " as \"value\" from unnest(", param, "::text[]) as ", str, ")")
		src.Type, src.Mod, src.Column = t, catalog.NoModifier, "value"
	}
	src.From = func(pgsql.Fragment) pgsql.Fragment { return from }

	kind := assembler.KindObject
	if m.Set {
		kind = assembler.KindList
	}
	return assembler.Field{Key: m.Field, Kind: kind, Source: src, Data: m.Selection}, nil
}

package gqlrequest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/schema"
)

// Transaction outcomes reported to the Recorder.
const (
	OutcomeCommit   = "commit"
	OutcomeRollback = "rollback"
	OutcomeFailed   = "failed"
)

// Recorder receives request metrics.
type Recorder interface {
	IncrementActiveRequests(ctx context.Context)
	DecrementActiveRequests(ctx context.Context)
	RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string)
	RecordQueryDepth(ctx context.Context, depth int64, operationType string)
	RecordTransaction(ctx context.Context, outcome string, readOnly bool)
}

// RunnerOptions configures a Runner. Every field is optional.
type RunnerOptions struct {
	Metrics Recorder
	// SpanAttributes and LogFields label the request span and completion log.
	SpanAttributes func(*Analysis, ExecMeta) []attribute.KeyValue
	LogFields      func(context.Context, *Analysis, ExecMeta) []any
	// Fingerprint identifies the schema in spans and logs.
	Fingerprint string
	Logger      *logging.Logger
}

// Runner executes requests against a schema, each inside its own request
// transaction: read-only for queries, read-write for mutations.
type Runner struct {
	db     dbexec.Beginner
	schema graphql.Schema
	opts   RunnerOptions
	logger *logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(db dbexec.Beginner, s graphql.Schema, opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	return &Runner{db: db, schema: s, opts: opts, logger: logger}
}

func errorResult(err error) *graphql.Result {
	return &graphql.Result{Errors: []gqlerrors.FormattedError{gqlerrors.FormatError(err)}}
}

// Run executes env. Failed mutation fields have already been rolled back to
// their savepoints, so the transaction commits whenever execution produced
// data; it rolls back when execution fails as a whole.
func (r *Runner) Run(ctx context.Context, env Envelope) (result *graphql.Result) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := r.logger.WithRequestID(requestID)
	ctx = logging.WithRequestIDContext(logging.WithLogger(ctx, logger), requestID)

	analysis := AnalyzeEnvelope(env)
	meta := ExecMeta{
		Fingerprint:   r.opts.Fingerprint,
		ReadOnly:      !analysis.IsMutation(),
		OperationName: analysis.OperationName,
		OperationType: analysis.OperationType,
		OperationHash: analysis.OperationHash,
	}
	ctx = WithExecMeta(WithAnalysis(ctx, analysis), meta)

	opType := analysis.OperationType
	if opType == "" {
		opType = "unknown"
	}
	if m := r.opts.Metrics; m != nil {
		m.IncrementActiveRequests(ctx)
		defer m.DecrementActiveRequests(ctx)
		if analysis.Operation != nil {
			m.RecordQueryDepth(ctx, int64(analysis.SelectionDepth), opType)
		}
		defer func() {
			m.RecordRequest(ctx, time.Since(start), result == nil || len(result.Errors) > 0, opType)
		}()
	}

	ctx, span := otel.Tracer("pg-graphql/graphql").Start(ctx, "graphql.execute")
	defer span.End()
	if span.IsRecording() && r.opts.SpanAttributes != nil {
		span.SetAttributes(r.opts.SpanAttributes(analysis, meta)...)
	}
	defer func() {
		fields := []any{slog.Duration("duration", time.Since(start)), slog.Int("errors", len(result.Errors))}
		if r.opts.LogFields != nil {
			fields = append(fields, r.opts.LogFields(ctx, analysis, meta)...)
		}
		logger.Info("graphql request completed", fields...)
		if len(result.Errors) > 0 {
			span.SetStatus(codes.Error, result.Errors[0].Message)
		}
	}()

	vars, err := env.Variables()
	if err != nil {
		return errorResult(err)
	}
	params := graphql.Params{
		Schema:         r.schema,
		RequestString:  env.Query,
		VariableValues: vars,
		OperationName:  env.OperationName,
		Context:        ctx,
	}
	if analysis.Err() != nil || analysis.Operation == nil {
		// graphql-go reports syntax and operation selection errors itself.
		return graphql.Do(params)
	}

	tx, err := r.db.BeginTx(ctx, meta.ReadOnly)
	if err != nil {
		return errorResult(fmt.Errorf("starting request transaction: %w", err))
	}
	return r.execute(ctx, tx, params, meta, span)
}

func (r *Runner) execute(ctx context.Context, tx dbexec.TxExecutor, params graphql.Params, meta ExecMeta, span trace.Span) *graphql.Result {
	logger := logging.FromContext(ctx)
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback()
			r.recordTransaction(ctx, OutcomeRollback, meta.ReadOnly)
		}
	}()

	params.Context = schema.WithTx(params.Context, tx)
	result := graphql.Do(params)
	finished = true

	if executionFailed(result) {
		if err := tx.Rollback(); err != nil {
			logger.Warn("failed to roll back request transaction", slog.String("error", err.Error()))
		}
		r.recordTransaction(ctx, OutcomeRollback, meta.ReadOnly)
		span.SetAttributes(attribute.String("db.transaction.outcome", OutcomeRollback))
		return result
	}
	if err := tx.Commit(); err != nil {
		r.recordTransaction(ctx, OutcomeFailed, meta.ReadOnly)
		span.RecordError(err)
		result.Errors = append(result.Errors, gqlerrors.FormatError(fmt.Errorf("committing request transaction: %w", err)))
		if !meta.ReadOnly {
			result.Data = nil
		}
		return result
	}
	r.recordTransaction(ctx, OutcomeCommit, meta.ReadOnly)
	span.SetAttributes(attribute.String("db.transaction.outcome", OutcomeCommit))
	return result
}

func (r *Runner) recordTransaction(ctx context.Context, outcome string, readOnly bool) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordTransaction(ctx, outcome, readOnly)
	}
}

// executionFailed reports whether execution produced no data at all.
func executionFailed(res *graphql.Result) bool {
	return res == nil || (res.Data == nil && len(res.Errors) > 0)
}

package observability

import (
	"context"
	"log/slog"

	"github.com/graphql-go/graphql/language/ast"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"pg-graphql/internal/gqlrequest"
)

// requestField is one request measure. span and log name it on the request
// span and in the completion log; an empty name leaves it out of that sink.
type requestField struct {
	span, log string
	value     attribute.Value
}

func requestFields(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []requestField {
	fields := []requestField{
		{span: string(semconv.DBSystemKey), value: semconv.DBSystemPostgreSQL.Value},
		{span: "db.transaction.read_only", log: "read_only", value: attribute.BoolValue(meta.ReadOnly)},
	}
	text := func(span, log, v string) {
		if v != "" {
			fields = append(fields, requestField{span: span, log: log, value: attribute.StringValue(v)})
		}
	}
	count := func(span, log string, n int) {
		fields = append(fields, requestField{span: span, log: log, value: attribute.IntValue(n)})
	}

	if analysis != nil {
		text("graphql.operation.requested_name", "operation_requested_name", analysis.RequestedOperationName)
		text("graphql.operation.name", "operation_name", analysis.OperationName)
		text("graphql.operation.type", "operation_type", analysis.OperationType)
		text("graphql.operation.hash", "operation_hash", analysis.OperationHash)
		if n := analysis.Envelope.DocumentSizeBytes; n > 0 {
			count("graphql.document.size_bytes", "", n)
		}
		if op := analysis.Operation; op != nil {
			count("graphql.query.field_count", "", analysis.FieldCount)
			count("graphql.query.depth", "selection_depth", analysis.SelectionDepth)
			count("graphql.query.variable_count", "", analysis.VariableCount)
			if analysis.IsMutation() {
				// each root mutation field runs under its own savepoint
				count("graphql.mutation.root_fields", "mutation_root_fields", rootFieldCount(op))
			}
		}
	}
	text("pg_graphql.schema.fingerprint", "schema_fingerprint", meta.Fingerprint)
	return fields
}

func rootFieldCount(op *ast.OperationDefinition) int {
	if op.SelectionSet == nil {
		return 0
	}
	n := 0
	for _, sel := range op.SelectionSet.Selections {
		if _, ok := sel.(*ast.Field); ok {
			n++
		}
	}
	return n
}

// GraphQLSpanAttributes labels the request span.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []attribute.KeyValue {
	fields := requestFields(analysis, meta)
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		if f.span != "" {
			attrs = append(attrs, attribute.KeyValue{Key: attribute.Key(f.span), Value: f.value})
		}
	}
	return attrs
}

// GraphQLLogFields labels the request completion log. The trace id is added
// when ctx carries a valid span.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []any {
	fields := requestFields(analysis, meta)
	out := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		if f.log != "" {
			out = append(out, slog.Any(f.log, f.value.AsInterface()))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out, slog.String("trace_id", sc.TraceID().String()))
	}
	return out
}

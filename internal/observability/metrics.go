package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pg-graphql"

// GraphQLMetrics holds metrics for GraphQL request execution.
type GraphQLMetrics struct {
	requestDuration    metric.Float64Histogram
	requestCounter     metric.Int64Counter
	errorCounter       metric.Int64Counter
	activeRequests     metric.Int64UpDownCounter
	queryDepth         metric.Int64Histogram
	transactionCounter metric.Int64Counter
	mutationStates     metric.Int64Counter
}

// InitGraphQLMetrics creates the request metrics on the global meter provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(meterName)
	m := &GraphQLMetrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestCounter, err = meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests that returned errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of GraphQL requests in flight"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	if m.queryDepth, err = meter.Int64Histogram(
		"graphql.query.depth",
		metric.WithDescription("Selection depth of GraphQL operations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}
	if m.transactionCounter, err = meter.Int64Counter(
		"graphql.transactions.total",
		metric.WithDescription("Request transactions by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create transaction counter: %w", err)
	}
	if m.mutationStates, err = meter.Int64Counter(
		"graphql.mutation.transitions.total",
		metric.WithDescription("Mutation executor state transitions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mutation transition counter: %w", err)
	}
	return m, nil
}

// RecordRequest records a finished request with its duration and outcome.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
}

// RecordQueryDepth records the selection depth of an operation.
func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

// RecordTransaction records how a request transaction ended: commit, rollback or failed.
func (m *GraphQLMetrics) RecordTransaction(ctx context.Context, outcome string, readOnly bool) {
	m.transactionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("read_only", readOnly),
	))
}

// RecordMutationTransition counts a state change of the mutation executor.
func (m *GraphQLMetrics) RecordMutationTransition(ctx context.Context, field, from, to string) {
	m.mutationStates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// IncrementActiveRequests increments the in-flight request counter.
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the in-flight request counter.
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores metrics in ctx.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext returns the metrics stored in ctx, or nil.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}

package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BuildMetrics holds metrics for schema builds.
type BuildMetrics struct {
	buildCounter    metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	typeCount       metric.Int64Gauge
	lastSuccessUnix atomic.Int64
}

// BuildStats summarises a finished build.
type BuildStats struct {
	Tables int
	Types  int
}

// InitBuildMetrics creates the schema build metrics on the global meter provider.
func InitBuildMetrics() (*BuildMetrics, error) {
	meter := otel.Meter(meterName)
	m := &BuildMetrics{}
	var err error

	if m.buildCounter, err = meter.Int64Counter(
		"schema.build.total",
		metric.WithDescription("Total number of schema builds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema build counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter(
		"schema.build.errors.total",
		metric.WithDescription("Total number of failed schema builds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema build error counter: %w", err)
	}
	if m.durationHist, err = meter.Float64Histogram(
		"schema.build.duration",
		metric.WithDescription("Duration of schema builds in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema build duration histogram: %w", err)
	}
	if m.typeCount, err = meter.Int64Gauge(
		"schema.build.types",
		metric.WithDescription("Number of GraphQL types in the last successful build"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema type gauge: %w", err)
	}

	lastSuccess, err := meter.Int64ObservableGauge(
		"schema.build.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful schema build"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema build last success gauge: %w", err)
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		if value := m.lastSuccessUnix.Load(); value > 0 {
			observer.ObserveInt64(lastSuccess, value)
		}
		return nil
	}, lastSuccess); err != nil {
		return nil, fmt.Errorf("failed to register schema build gauge callback: %w", err)
	}
	return m, nil
}

// RecordBuild records one build attempt. stats is ignored for failed builds.
func (m *BuildMetrics) RecordBuild(ctx context.Context, duration time.Duration, err error, stats BuildStats) {
	success := err == nil
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.buildCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if !success {
		m.errorCounter.Add(ctx, 1)
		return
	}
	m.typeCount.Record(ctx, int64(stats.Types), metric.WithAttributes(attribute.Int("tables", stats.Tables)))
	m.lastSuccessUnix.Store(time.Now().Unix())
}

// LastSuccess returns the time of the last successful build, or the zero time.
func (m *BuildMetrics) LastSuccess() time.Time {
	value := m.lastSuccessUnix.Load()
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0)
}

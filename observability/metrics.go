// Package observability wires metrics for query execution and eager
// loading through the OpenTelemetry metric API, exported via Prometheus.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's instruments.
type Metrics struct {
	queryDuration     metric.Float64Histogram
	queryCounter      metric.Int64Counter
	queryErrors       metric.Int64Counter
	eagerParentCount  metric.Int64Histogram
	eagerQueriesSaved metric.Int64Counter
}

// InitMetrics registers the engine's instruments against the global
// meter provider.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("relmap")

	queryDuration, err := meter.Float64Histogram(
		"relmap.query.duration",
		metric.WithDescription("Duration of store queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"relmap.queries.total",
		metric.WithDescription("Total number of store queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	queryErrors, err := meter.Int64Counter(
		"relmap.query.errors.total",
		metric.WithDescription("Total number of failed store queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query error counter: %w", err)
	}

	eagerParentCount, err := meter.Int64Histogram(
		"relmap.eager.parent_count",
		metric.WithDescription("Number of parent keys constrained by one eager branch query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eager parent count histogram: %w", err)
	}

	eagerQueriesSaved, err := meter.Int64Counter(
		"relmap.eager.queries_saved.total",
		metric.WithDescription("Per-record queries avoided by batched eager loading"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eager queries saved counter: %w", err)
	}

	return &Metrics{
		queryDuration:     queryDuration,
		queryCounter:      queryCounter,
		queryErrors:       queryErrors,
		eagerParentCount:  eagerParentCount,
		eagerQueriesSaved: eagerQueriesSaved,
	}, nil
}

// RecordQuery records one store query execution.
func (m *Metrics) RecordQuery(ctx context.Context, op string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.queryCounter.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	if err != nil {
		m.queryErrors.Add(ctx, 1, attrs)
	}
}

// RecordEagerBranch records one batched eager branch: how many parents it
// covered and how many per-record queries that saved.
func (m *Metrics) RecordEagerBranch(ctx context.Context, relation string, parents int) {
	attrs := metric.WithAttributes(attribute.String("relation", relation))
	m.eagerParentCount.Record(ctx, int64(parents), attrs)
	if parents > 1 {
		m.eagerQueriesSaved.Add(ctx, int64(parents-1), attrs)
	}
}

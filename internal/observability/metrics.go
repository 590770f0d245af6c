package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics holds custom metrics for GraphQL operations
type GraphQLMetrics struct {
	requestDuration  metric.Float64Histogram
	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	activeRequests   metric.Int64UpDownCounter
	batchParentCount metric.Int64Histogram
	batchHits        metric.Int64Counter
	batchMisses      metric.Int64Counter
	batchFlushErrors metric.Int64Counter
}

// InitGraphQLMetrics initializes GraphQL-specific metrics
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter("metagql")

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	batchParentCount, err := meter.Int64Histogram(
		"relation.batch.parent_count",
		metric.WithDescription("Number of parent ids included in a batched relation read"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}

	batchHits, err := meter.Int64Counter(
		"relation.batch.hits",
		metric.WithDescription("Relation reads answered from an already-flushed batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch hits counter: %w", err)
	}

	batchMisses, err := meter.Int64Counter(
		"relation.batch.misses",
		metric.WithDescription("Relation reads that triggered a batch flush"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch misses counter: %w", err)
	}

	batchFlushErrors, err := meter.Int64Counter(
		"relation.batch.flush_errors",
		metric.WithDescription("Batch flushes that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch flush errors counter: %w", err)
	}

	return &GraphQLMetrics{
		requestDuration:  requestDuration,
		requestCounter:   requestCounter,
		errorCounter:     errorCounter,
		activeRequests:   activeRequests,
		batchParentCount: batchParentCount,
		batchHits:        batchHits,
		batchMisses:      batchMisses,
		batchFlushErrors: batchFlushErrors,
	}, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("has_errors", hasErrors),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if hasErrors {
		m.errorCounter.Add(ctx, 1)
	}
}

// RecordBatchParentCount records the fan-in of a single batched relation read.
func (m *GraphQLMetrics) RecordBatchParentCount(ctx context.Context, count int64, relation string) {
	m.batchParentCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation", relation),
	))
}

// RecordBatchStats publishes per-request loader counters. Deltas are expected,
// so callers record once per request after execution completes.
func (m *GraphQLMetrics) RecordBatchStats(ctx context.Context, hits, misses, flushErrors int64) {
	if hits > 0 {
		m.batchHits.Add(ctx, hits)
	}
	if misses > 0 {
		m.batchMisses.Add(ctx, misses)
	}
	if flushErrors > 0 {
		m.batchFlushErrors.Add(ctx, flushErrors)
	}
}

// IncrementActiveRequests increments the active requests counter
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the GraphQLMetrics instance
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}

	logger.Info("custom GraphQL metrics initialized")
	return metrics, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}

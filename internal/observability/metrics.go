package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReportMetrics holds custom metrics for the report pipeline.
// A nil *ReportMetrics is valid and records nothing.
type ReportMetrics struct {
	requestCounter     metric.Int64Counter
	requestDuration    metric.Float64Histogram
	validationFailures metric.Int64Counter
	emptyResults       metric.Int64Counter
	executionErrors    metric.Int64Counter
	queryDuration      metric.Float64Histogram
	rowsFetched        metric.Int64Histogram
	exportBytes        metric.Int64Histogram
}

// InitReportMetrics initializes report pipeline metrics on the global meter.
func InitReportMetrics() (*ReportMetrics, error) {
	meter := otel.Meter("tin-report")

	requestCounter, err := meter.Int64Counter(
		"report.requests.total",
		metric.WithDescription("Total number of report requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"report.request.duration",
		metric.WithDescription("End-to-end duration of report requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	validationFailures, err := meter.Int64Counter(
		"report.validation_failures.total",
		metric.WithDescription("Total number of rejected filter inputs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation failure counter: %w", err)
	}

	emptyResults, err := meter.Int64Counter(
		"report.empty_results.total",
		metric.WithDescription("Total number of requests that matched no rows"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create empty result counter: %w", err)
	}

	executionErrors, err := meter.Int64Counter(
		"report.errors.total",
		metric.WithDescription("Total number of warehouse or export failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"report.query.duration",
		metric.WithDescription("Duration of warehouse queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	rowsFetched, err := meter.Int64Histogram(
		"report.rows.count",
		metric.WithDescription("Number of rows fetched per report query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows fetched histogram: %w", err)
	}

	exportBytes, err := meter.Int64Histogram(
		"report.export.bytes",
		metric.WithDescription("Size of generated spreadsheets in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create export size histogram: %w", err)
	}

	return &ReportMetrics{
		requestCounter:     requestCounter,
		requestDuration:    requestDuration,
		validationFailures: validationFailures,
		emptyResults:       emptyResults,
		executionErrors:    executionErrors,
		queryDuration:      queryDuration,
		rowsFetched:        rowsFetched,
		exportBytes:        exportBytes,
	}, nil
}

// RecordRequest counts a pipeline invocation and its total duration.
func (m *ReportMetrics) RecordRequest(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.requestCounter.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordValidationFailure counts a rejected input by its error code.
func (m *ReportMetrics) RecordValidationFailure(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordEmptyResult counts a request that matched no rows.
func (m *ReportMetrics) RecordEmptyResult(ctx context.Context) {
	if m == nil {
		return
	}
	m.emptyResults.Add(ctx, 1)
}

// RecordExecutionError counts a warehouse or export failure by stage.
func (m *ReportMetrics) RecordExecutionError(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.executionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordQuery records the warehouse round trip and its row count.
func (m *ReportMetrics) RecordQuery(ctx context.Context, duration time.Duration, rows int) {
	if m == nil {
		return
	}
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()))
	m.rowsFetched.Record(ctx, int64(rows))
}

// RecordExport records the size of a generated artifact.
func (m *ReportMetrics) RecordExport(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.exportBytes.Record(ctx, int64(size))
}

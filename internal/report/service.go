// Package report wires validation, query planning, execution and export
// into the end-to-end pipeline behind the download endpoint.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tin-report/internal/dbexec"
	"tin-report/internal/export"
	"tin-report/internal/filter"
	"tin-report/internal/logging"
	"tin-report/internal/observability"
	"tin-report/internal/planner"
)

// Artifact is a finished report: the spreadsheet bytes and the filename
// the client should save it under.
type Artifact struct {
	Content  []byte
	Filename string
	Rows     int
}

// Service runs the report pipeline. All fields except Metrics are required.
type Service struct {
	Executor dbexec.QueryExecutor
	Table    string
	Policy   filter.Policy
	Exporter *export.Exporter
	Metrics  *observability.ReportMetrics
}

// Generate validates the raw filter fields, builds and runs the warehouse
// query, and serializes the result as a spreadsheet.
//
// Error classes, in pipeline order:
//   - *filter.ValidationError: bad input, nothing was executed
//   - *dbexec.ExecError: the warehouse query failed
//   - export.ErrNoRows: the query ran but matched no data
func (s *Service) Generate(ctx context.Context, raw filter.RawFilter) (*Artifact, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()

	fs, err := filter.Validate(raw, s.Policy)
	if err != nil {
		var verr *filter.ValidationError
		if errors.As(err, &verr) {
			logger.Warn("rejected report filter",
				"code", verr.Code,
				"field", verr.Field)
			s.Metrics.RecordValidationFailure(ctx, verr.Code)
		}
		s.Metrics.RecordRequest(ctx, "rejected", time.Since(start))
		return nil, err
	}

	query, err := planner.BuildReportQuery(s.Table, fs)
	if err != nil {
		s.Metrics.RecordRequest(ctx, "error", time.Since(start))
		return nil, fmt.Errorf("failed to plan report query: %w", err)
	}

	logger.Info("executing report query",
		"query", query.SQL,
		"params", query.Args,
		"rendered", planner.RenderForLog(query))

	queryStart := time.Now()
	result, err := dbexec.FetchAll(ctx, s.Executor, query.SQL, query.Args...)
	if err != nil {
		var execErr *dbexec.ExecError
		stage := "query"
		if errors.As(err, &execErr) {
			stage = execErr.Stage
		}
		logger.Error("report query failed", "stage", stage, "error", err)
		s.Metrics.RecordExecutionError(ctx, stage)
		s.Metrics.RecordRequest(ctx, "error", time.Since(start))
		return nil, err
	}
	s.Metrics.RecordQuery(ctx, time.Since(queryStart), len(result.Rows))

	content, err := s.Exporter.Export(result)
	if err != nil {
		if errors.Is(err, export.ErrNoRows) {
			logger.Info("report matched no rows",
				"tins", len(fs.TINs),
				"end_date", fs.EndDateString())
			s.Metrics.RecordEmptyResult(ctx)
			s.Metrics.RecordRequest(ctx, "empty", time.Since(start))
			return nil, err
		}
		logger.Error("spreadsheet export failed", "error", err)
		s.Metrics.RecordExecutionError(ctx, "export")
		s.Metrics.RecordRequest(ctx, "error", time.Since(start))
		return nil, fmt.Errorf("failed to export report: %w", err)
	}
	s.Metrics.RecordExport(ctx, len(content))

	artifact := &Artifact{
		Content:  content,
		Filename: export.Filename(fs),
		Rows:     len(result.Rows),
	}
	logger.Info("report generated",
		"filename", artifact.Filename,
		"rows", artifact.Rows,
		"bytes", len(artifact.Content),
		"duration_ms", time.Since(start).Milliseconds())
	s.Metrics.RecordRequest(ctx, "ok", time.Since(start))
	return artifact, nil
}

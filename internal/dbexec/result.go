package dbexec

import (
	"context"
	"database/sql"
)

// TabularResult holds a fully materialized result set: the column name
// sequence as returned by the warehouse and the rows aligned to it.
// Zero rows is a valid, distinguished state meaning "no matching data".
type TabularResult struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the result holds no data rows.
func (r *TabularResult) Empty() bool {
	return len(r.Rows) == 0
}

// FetchAll runs the query with positionally bound args and materializes the
// complete result set before returning. Parameters are never substituted
// into the query text. The underlying rows are closed on every exit path.
// Any failure is wrapped as *ExecError.
func FetchAll(ctx context.Context, executor QueryExecutor, query string, args ...any) (*TabularResult, error) {
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ExecError{Stage: "query", Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &ExecError{Stage: "columns", Err: err}
	}

	result := &TabularResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]sql.RawBytes, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, &ExecError{Stage: "scan", Err: err}
		}

		// RawBytes aliases driver memory that the next Next() reuses;
		// copy into owned values before materializing the row.
		row := make([]any, len(columns))
		for i, v := range values {
			if v == nil {
				row[i] = nil
				continue
			}
			row[i] = string(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Stage: "rows", Err: err}
	}

	return result, nil
}

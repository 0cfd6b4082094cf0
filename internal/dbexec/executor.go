// Package dbexec executes prepared report queries against the warehouse
// and materializes their results.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// QueryExecutor abstracts query execution so tests can swap in fakes.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// StandardExecutor executes queries directly against a database handle.
// The handle's pool scopes one connection to each in-flight query.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries against the warehouse.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

// ExecError wraps any infrastructure failure during query execution:
// connectivity, authentication, malformed SQL, or warehouse-side faults.
// It is fatal to the request; there are no retries.
type ExecError struct {
	Stage string // "query", "columns", "scan", "rows"
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("warehouse %s failed: %v", e.Stage, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Package planner builds the parameterized warehouse query for a report request.
package planner

import (
	"fmt"
	"strings"

	"tin-report/internal/filter"
	"tin-report/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// PreparedQuery is a query template with positional placeholders and the
// ordered parameter list binding to them one-to-one, left to right.
type PreparedQuery struct {
	SQL  string
	Args []any
}

// PlaceholderCount returns the number of positional placeholders in the text.
func (q PreparedQuery) PlaceholderCount() int {
	return strings.Count(q.SQL, "?")
}

// BuildReportQuery composes the filtering query for a validated FilterSet.
//
// Clause and parameter order is fixed:
//
//	end_date >= ?            (endDate)
//	start_date <= ?          (startDate)
//	tin IN (?, ...)          (one placeholder per TIN, original order)
//	npi = ?                  (only when present)
//
// The TIN membership clause is generated with exactly len(tins) placeholders
// on every call; the arity is never hard-coded. Date parameters are bound as
// YYYY-MM-DD strings.
func BuildReportQuery(table string, f filter.FilterSet) (PreparedQuery, error) {
	if len(f.TINs) == 0 {
		return PreparedQuery{}, fmt.Errorf("filter set has no TINs")
	}
	if table == "" {
		return PreparedQuery{}, fmt.Errorf("warehouse table is not configured")
	}

	builder := sq.Select("*").
		From(sqlutil.QuoteIdentifier(table)).
		Where(sq.GtOrEq{sqlutil.QuoteIdentifier("end_date"): f.EndDateString()}).
		Where(sq.LtOrEq{sqlutil.QuoteIdentifier("start_date"): f.StartDateString()}).
		Where(sq.Eq{sqlutil.QuoteIdentifier("tin"): f.TINs})

	if f.HasNPI() {
		builder = builder.Where(sq.Eq{sqlutil.QuoteIdentifier("npi"): f.NPI})
	}

	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return PreparedQuery{}, fmt.Errorf("failed to build report query: %w", err)
	}

	q := PreparedQuery{SQL: sql, Args: args}
	if got, want := q.PlaceholderCount(), len(args); got != want {
		// Mis-binding corrupts results silently; fail loudly instead.
		return PreparedQuery{}, fmt.Errorf("placeholder count %d does not match parameter count %d", got, want)
	}
	return q, nil
}

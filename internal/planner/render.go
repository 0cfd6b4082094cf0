package planner

import (
	"fmt"
	"strings"

	"tin-report/internal/sqlutil"
)

// RenderForLog substitutes display-quoted parameter values into a copy of
// the query text for diagnostic logging. The rendered string is never sent
// to the warehouse; execution always binds Args positionally.
func RenderForLog(q PreparedQuery) string {
	// Split on the original placeholders so a "?" inside a substituted
	// value cannot swallow a later parameter's slot.
	segments := strings.SplitN(q.SQL, "?", len(q.Args)+1)

	var b strings.Builder
	b.WriteString(segments[0])
	for i, arg := range q.Args {
		if i+1 >= len(segments) {
			break
		}
		b.WriteString(sqlutil.QuoteString(fmt.Sprintf("%v", arg)))
		b.WriteString(segments[i+1])
	}
	return b.String()
}

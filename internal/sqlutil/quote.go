// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them. Display use only;
// values sent to the warehouse are always bound positionally.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

// Placeholders returns n comma-separated positional placeholders,
// e.g. Placeholders(3) == "?,?,?". Returns "" for n <= 0.
// The count must always be derived from the value list being bound;
// a fixed count mis-binds silently instead of failing.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

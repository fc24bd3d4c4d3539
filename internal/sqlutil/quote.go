// Package sqlutil provides SQL identifier helpers shared by the store,
// constraint, and pivot packages.
package sqlutil

import "strings"

// PivotPrefix marks join-table columns selected alongside target-table
// columns so they can be split back out into pivot sub-records.
const PivotPrefix = "_pivot_"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// IsPivotColumn reports whether a result column carries the pivot prefix.
func IsPivotColumn(name string) bool {
	return strings.HasPrefix(name, PivotPrefix)
}

// TrimPivotPrefix strips the pivot prefix from a result column name.
func TrimPivotPrefix(name string) string {
	return strings.TrimPrefix(name, PivotPrefix)
}

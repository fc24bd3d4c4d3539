package constraint

import (
	"relmap/internal/sqlutil"
	"relmap/record"
)

// ParsePivot splits each record's attributes into base-record attributes
// and pivot attributes, recognized by the pivot column prefix. It is
// idempotent: re-parsing an already split set finds no prefixed columns
// and leaves the existing pivots untouched.
func ParsePivot(set *record.Set) {
	for _, r := range set.Records() {
		attrs := r.Attributes()
		var pivotAttrs map[string]any
		for name, value := range attrs {
			if !sqlutil.IsPivotColumn(name) {
				continue
			}
			if pivotAttrs == nil {
				pivotAttrs = make(map[string]any)
			}
			pivotAttrs[sqlutil.TrimPivotPrefix(name)] = value
		}
		if pivotAttrs == nil {
			continue
		}
		for name := range pivotAttrs {
			delete(attrs, sqlutil.PivotPrefix+name)
		}
		r.SetPivot(record.NewPivot(pivotAttrs))
	}
}

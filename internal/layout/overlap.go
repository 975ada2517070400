// Package layout places timed entries on a column grid so that entries whose
// windows overlap never share a column.
//
// Every function in this package is pure: inputs are never mutated and a new
// slice is returned.
package layout

import "github.com/tomasr8/new-timetable/internal/model"

// Overlaps reports whether the half-open windows [start, start+duration) of a
// and b intersect. An entry ending exactly when another begins does not
// overlap it.
func Overlaps(a, b model.Base) bool {
	return a.Start.Before(b.End()) && b.Start.Before(a.End())
}

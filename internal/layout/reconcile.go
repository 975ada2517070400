package layout

import (
	"math"

	"github.com/tomasr8/new-timetable/internal/model"
)

// ReconcileAfterMove lays out the group an entry was just dropped into.
//
// group holds the entries that overlap the moved entry's new window (see
// GroupOf) with their geometry from the previous pass; moved carries its new
// window and the stale geometry of the group it came from. dropFraction is the
// horizontal pointer position within the drop target, in [0, 1].
//
// The members may come from groups with different column counts. They are
// first rescaled onto one grid whose width is the least common multiple of
// all counts, the column under the pointer is opened up, the moved entry is
// inserted there, and AssignColumns collapses the result back to a minimal
// grid. The returned slice holds the group members and the moved entry in
// the order AssignColumns visits them: stable by the rescaled column.
func ReconcileAfterMove[E model.Entry](group []E, moved E, dropFraction float64) []E {
	if len(group) == 0 {
		b := moved.Base()
		b.Column = 0
		b.MaxColumn = 0
		return AssignColumns([]E{model.With(moved, b)})
	}

	members, mb := planMove(bases(group), moved.Base(), dropFraction)

	combined := make([]E, 0, len(group)+1)
	for i, e := range group {
		combined = append(combined, model.With(e, members[i]))
	}
	combined = append(combined, model.With(moved, mb))
	return AssignColumns(combined)
}

// planMove performs the rescale/shift/insert steps on bare bases and returns
// the seeded columns before the final collapse.
func planMove(group []model.Base, moved model.Base, dropFraction float64) ([]model.Base, model.Base) {
	counts := make([]int, 0, len(group)+1)
	counts = append(counts, columnCount(moved))
	for _, b := range group {
		counts = append(counts, columnCount(b))
	}
	width := lcm(counts...)

	members := make([]model.Base, len(group))
	for i, b := range group {
		members[i] = rescale(b, width)
	}
	moved = rescale(moved, width)

	selected := selectColumn(width, dropFraction)
	rightToLeft := selected < moved.Column

	var shift func(column int) int
	switch {
	case selected == 0:
		// Slot 0 is reserved for the moved entry.
		shift = func(column int) int { return column + 1 }
	case selected == width-1:
		// Dropping on the last column appends to the right; nothing moves.
		shift = func(column int) int { return column }
	case rightToLeft:
		shift = func(column int) int {
			if column < selected {
				return column
			}
			return column + 1
		}
	default:
		shift = func(column int) int {
			if column <= selected {
				return column
			}
			return column + 1
		}
	}
	for i := range members {
		members[i].Column = shift(members[i].Column)
	}

	switch {
	case selected == 0:
		moved.Column = 0
	case rightToLeft:
		moved.Column = selected
	default:
		moved.Column = selected + 1
	}
	moved.MaxColumn = width
	return members, moved
}

// rescale maps b's column from its own grid onto a grid of width columns.
// width must be a multiple of b's column count.
func rescale(b model.Base, width int) model.Base {
	count := columnCount(b)
	column := b.Column
	if column < 0 {
		column = 0
	}
	if column >= count {
		column = count - 1
	}
	b.Column = (column+1)*width/count - 1
	b.MaxColumn = width
	return b
}

// selectColumn maps a drop fraction onto a column of a width-wide grid.
func selectColumn(width int, fraction float64) int {
	switch {
	case math.IsNaN(fraction) || fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	selected := int(math.Floor(float64(width) * fraction))
	if selected >= width {
		selected = width - 1
	}
	return selected
}

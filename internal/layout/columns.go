package layout

import (
	"sort"

	"github.com/tomasr8/new-timetable/internal/model"
)

// AssignColumns lays out one group. Members are visited in ascending order of
// their current column (ties keep input order) and each one takes the column
// right after the highest column among already-placed members it overlaps, or
// column 0 when it overlaps none. Every member then shares the group's
// MaxColumn and gets Width = 100/(MaxColumn+1) percent and X = Column*Width.
//
// Sorting by the current column keeps an already laid-out group unchanged and
// lets a caller seed the order before the final columns are derived. The
// result is returned in visiting order.
func AssignColumns[E model.Entry](group []E) []E {
	if len(group) == 0 {
		return nil
	}

	sorted := make([]E, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Base().Column < sorted[j].Base().Column
	})

	placed := make([]model.Base, 0, len(sorted))
	maxColumn := 0
	for _, e := range sorted {
		b := e.Base()
		b.Column = 0
		for _, p := range placed {
			if Overlaps(p, b) && p.Column+1 > b.Column {
				b.Column = p.Column + 1
			}
		}
		if b.Column > maxColumn {
			maxColumn = b.Column
		}
		placed = append(placed, b)
	}

	width := columnWidth(maxColumn)
	out := make([]E, len(sorted))
	for i, b := range placed {
		b.MaxColumn = maxColumn
		b.Width = width
		b.X = float64(b.Column) * width
		out[i] = model.With(sorted[i], b)
	}
	return out
}

func columnWidth(maxColumn int) float64 {
	if maxColumn < 0 {
		maxColumn = 0
	}
	return 100 / float64(maxColumn+1)
}

// columnCount returns the number of columns of the grid b was laid out on.
func columnCount(b model.Base) int {
	if b.MaxColumn < 0 {
		return 1
	}
	return b.MaxColumn + 1
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm returns the least common multiple of counts. Non-positive counts are
// treated as 1 and an empty input yields 1.
func lcm(counts ...int) int {
	out := 1
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		out = out / gcd(out, c) * c
	}
	return out
}

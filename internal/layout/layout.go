package layout

import (
	"time"

	"github.com/tomasr8/new-timetable/internal/model"
)

// DefaultPixelsPerMinute is the vertical scale used when Options leaves it
// unset.
const DefaultPixelsPerMinute = 2

// Options controls the vertical geometry produced by Layout.
type Options struct {
	// PixelsPerMinute converts minutes into the Y offset. Zero or negative
	// values fall back to DefaultPixelsPerMinute.
	PixelsPerMinute int
}

func (o Options) scale() int {
	if o.PixelsPerMinute <= 0 {
		return DefaultPixelsPerMinute
	}
	return o.PixelsPerMinute
}

// MinutesToPixels converts a duration in minutes into a vertical offset.
func (o Options) MinutesToPixels(minutes int) int {
	return minutes * o.scale()
}

// PixelsToMinutes converts a vertical pointer delta into minutes, truncating
// toward zero.
func (o Options) PixelsToMinutes(pixels int) int {
	return pixels / o.scale()
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Layout computes fresh geometry for a collection.
//
// Children of every container are laid out first, as an independent
// collection scoped to their container: a child never groups with anything
// outside it, and its Y is measured from the container start. The collection
// itself is then split into overlap groups and each group gets its columns
// from AssignColumns; Y is measured from the start of the entry's day.
//
// The result keeps the input order, so Layout(Layout(x)) equals Layout(x).
func Layout[E model.Entry](entries []E, opts Options) []E {
	return layoutLevel(entries, func(b model.Base) time.Time { return StartOfDay(b.Start) }, opts)
}

func layoutLevel[E model.Entry](entries []E, origin func(model.Base) time.Time, opts Options) []E {
	if len(entries) == 0 {
		return []E{}
	}

	prepared := make([]E, len(entries))
	index := make(map[int]int, len(entries))
	for i, e := range entries {
		if c, ok := any(e).(model.Container); ok {
			start := c.Base().Start
			children := layoutLevel(c.Children(), func(model.Base) time.Time { return start }, opts)
			e = any(c.WithChildren(children)).(E)
		}
		prepared[i] = e
		index[e.Base().ID] = i
	}

	out := make([]E, len(prepared))
	for _, g := range Groups(prepared) {
		for _, e := range AssignColumns(Members(g, prepared)) {
			b := e.Base()
			b.Y = opts.MinutesToPixels(int(b.Start.Sub(origin(b)) / time.Minute))
			out[index[b.ID]] = model.With(e, b)
		}
	}
	return out
}

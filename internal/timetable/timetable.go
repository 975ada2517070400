// Package timetable applies user gestures (resize, move, re-parent) to an
// immutable snapshot of laid-out entries.
//
// Every operation either returns a new, fully laid-out Snapshot or rejects
// the gesture with one of the sentinel errors below, leaving the receiver
// untouched.
package timetable

import (
	"errors"
	"fmt"
	"math"

	"github.com/tomasr8/new-timetable/internal/layout"
	"github.com/tomasr8/new-timetable/internal/model"
)

var (
	ErrNotFound          = errors.New("entry not found")
	ErrTooShort          = errors.New("duration below minimum")
	ErrOutsideContainer  = errors.New("entry would fall outside its container")
	ErrContainerTooShort = errors.New("container would end before its children")
	ErrNotMovable        = errors.New("entry cannot be moved to this target")
	ErrUnknownTarget     = errors.New("drop target is not a container")
)

// DefaultMinDuration is the shortest duration, in minutes, a resize may
// produce.
const DefaultMinDuration = 10

// Calendar is the drop target ID for the top-level calendar area.
const Calendar = 0

// Options configures a Snapshot.
type Options struct {
	Layout layout.Options
	// MinDuration overrides DefaultMinDuration when positive.
	MinDuration int
}

func (o Options) minDuration() int {
	if o.MinDuration <= 0 {
		return DefaultMinDuration
	}
	return o.MinDuration
}

// Snapshot is an immutable, laid-out collection of top-level entries.
type Snapshot struct {
	entries []model.Entry
	opts    Options
}

// New validates entries and returns their laid-out snapshot.
func New(entries []model.Entry, opts Options) (Snapshot, error) {
	if err := model.Validate(entries); err != nil {
		return Snapshot{}, fmt.Errorf("timetable: %w", err)
	}
	s := Snapshot{opts: opts}
	return s.commit(entries), nil
}

// Entries returns a copy of the top-level entries.
func (s Snapshot) Entries() []model.Entry {
	out := make([]model.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Options returns the options the snapshot was built with.
func (s Snapshot) Options() Options {
	return s.opts
}

// Find looks an entry up at any level.
func (s Snapshot) Find(id int) (model.Location, bool) {
	return model.Find(s.entries, id)
}

// Len returns the number of entries at all levels.
func (s Snapshot) Len() int {
	return model.Count(s.entries)
}

func (s Snapshot) commit(entries []model.Entry) Snapshot {
	return Snapshot{
		entries: layout.Layout(entries, s.opts.Layout),
		opts:    s.opts,
	}
}

// Resize changes the duration of one entry.
//
// The resize is rejected when the result would be shorter than the minimum
// duration, when a child would end after its container, or when a container
// would end before its latest-ending child.
func (s Snapshot) Resize(id, duration int) (Snapshot, error) {
	loc, ok := s.Find(id)
	if !ok {
		return s, fmt.Errorf("timetable: resize %d: %w", id, ErrNotFound)
	}
	if duration < s.opts.minDuration() {
		return s, fmt.Errorf("timetable: resize %d to %d min: %w", id, duration, ErrTooShort)
	}

	b := loc.Entry.Base()
	b.Duration = duration
	entries := s.Entries()

	if loc.Parent != nil {
		if b.End().After(loc.Parent.Base().End()) {
			return s, fmt.Errorf("timetable: resize %d: %w", id, ErrOutsideContainer)
		}
		children := loc.Parent.Children()
		children[loc.Index] = model.With(children[loc.Index], b)
		entries[loc.ParentIndex] = loc.Parent.WithChildren(children)
		return s.commit(entries), nil
	}

	if c, ok := loc.Entry.(model.Container); ok {
		if end, has := c.LatestChildEnd(); has && b.End().Before(end) {
			return s, fmt.Errorf("timetable: resize %d: %w", id, ErrContainerTooShort)
		}
	}
	entries[loc.Index] = model.With(loc.Entry, b)
	return s.commit(entries), nil
}

// SnapMinutes rounds a raw minute delta to the nearest multiple of grid.
func SnapMinutes(delta, grid int) int {
	if grid <= 0 {
		return delta
	}
	return int(math.Round(float64(delta)/float64(grid))) * grid
}

package timetable

import (
	"fmt"

	"github.com/tomasr8/new-timetable/internal/layout"
	"github.com/tomasr8/new-timetable/internal/model"
)

// Drop describes a finished drag gesture.
type Drop struct {
	// EntryID is the dragged entry.
	EntryID int
	// Target is Calendar or the ID of the container the entry was dropped on.
	Target int
	// DeltaMinutes is the vertical displacement, already snapped.
	DeltaMinutes int
	// Fraction is the horizontal pointer position inside the target, in [0, 1].
	Fraction float64
}

// Move repositions an entry according to d, re-parenting it when it crosses a
// container boundary.
//
// Dropped on the calendar, top-level entries keep their scope (a container
// carries its children along) and a child break is promoted to top level.
// Dropped on a container, children may move inside their own container,
// while only breaks may enter a container from elsewhere. Moves into a
// container must keep the entry inside the container's window.
func (s Snapshot) Move(d Drop) (Snapshot, error) {
	loc, ok := s.Find(d.EntryID)
	if !ok {
		return s, fmt.Errorf("timetable: move %d: %w", d.EntryID, ErrNotFound)
	}
	if d.Target == Calendar {
		return s.moveToCalendar(loc, d)
	}
	return s.moveToContainer(loc, d)
}

func (s Snapshot) moveToCalendar(loc model.Location, d Drop) (Snapshot, error) {
	entries := s.Entries()
	insertAt := -1

	if loc.Parent != nil {
		if loc.Entry.Kind() != model.KindBreak {
			return s, fmt.Errorf("timetable: move %d out of container %d: %w", d.EntryID, loc.Parent.Base().ID, ErrNotMovable)
		}
		children := remove(loc.Parent.Children(), loc.Index)
		entries[loc.ParentIndex] = loc.Parent.WithChildren(layout.Layout(children, s.opts.Layout))
	} else {
		entries = remove(entries, loc.Index)
		insertAt = loc.Index
	}

	b := loc.Entry.Base().Shift(d.DeltaMinutes)
	b.ParentID = 0
	moved := loc.Entry.WithBase(b)
	if c, ok := moved.(model.Container); ok {
		moved = shiftChildren(c, d.DeltaMinutes)
	}

	group := layout.GroupOf(b, entries)
	reconciled := layout.ReconcileAfterMove(layout.Members(group, entries), moved, d.Fraction)
	return s.commit(substitute(entries, reconciled, b.ID, insertAt)), nil
}

func (s Snapshot) moveToContainer(loc model.Location, d Drop) (Snapshot, error) {
	target, ok := s.Find(d.Target)
	if !ok || target.Parent != nil {
		return s, fmt.Errorf("timetable: move %d onto %d: %w", d.EntryID, d.Target, ErrUnknownTarget)
	}
	dest, ok := target.Entry.(model.Container)
	if !ok {
		return s, fmt.Errorf("timetable: move %d onto %d: %w", d.EntryID, d.Target, ErrUnknownTarget)
	}
	leaf, ok := loc.Entry.(model.Leaf)
	if !ok {
		return s, fmt.Errorf("timetable: move %s %d into container: %w", loc.Entry.Kind(), d.EntryID, ErrNotMovable)
	}
	sameContainer := loc.Parent != nil && loc.Parent.Base().ID == dest.Base().ID
	if !sameContainer && leaf.Kind() != model.KindBreak {
		return s, fmt.Errorf("timetable: move %s %d into container %d: %w", leaf.Kind(), d.EntryID, d.Target, ErrNotMovable)
	}

	b := leaf.Base().Shift(d.DeltaMinutes)
	b.ParentID = dest.Base().ID
	if !dest.Base().Contains(b) {
		return s, fmt.Errorf("timetable: move %d into container %d: %w", d.EntryID, d.Target, ErrOutsideContainer)
	}
	leaf = model.With(leaf, b)

	entries := s.Entries()
	children := dest.Children()
	insertAt := -1
	switch {
	case sameContainer:
		children = remove(children, loc.Index)
		insertAt = loc.Index
	case loc.Parent != nil:
		source := remove(loc.Parent.Children(), loc.Index)
		entries[loc.ParentIndex] = loc.Parent.WithChildren(layout.Layout(source, s.opts.Layout))
	default:
		entries = remove(entries, loc.Index)
	}

	group := layout.GroupOf(b, children)
	reconciled := layout.ReconcileAfterMove(layout.Members(group, children), leaf, d.Fraction)
	children = substitute(children, reconciled, b.ID, insertAt)

	for i, e := range entries {
		if e.Base().ID == dest.Base().ID {
			entries[i] = dest.WithChildren(children)
			break
		}
	}
	return s.commit(entries), nil
}

func shiftChildren(c model.Container, minutes int) model.Container {
	children := c.Children()
	for i, ch := range children {
		children[i] = model.With(ch, ch.Base().Shift(minutes))
	}
	return c.WithChildren(children)
}

func remove[E any](xs []E, i int) []E {
	out := make([]E, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	return append(out, xs[i+1:]...)
}

// substitute replaces the members of collection that appear in reconciled and
// places the moved entry at insertAt, or at the end when insertAt is out of
// range.
func substitute[E model.Entry](collection, reconciled []E, movedID, insertAt int) []E {
	byID := make(map[int]E, len(reconciled))
	for _, e := range reconciled {
		byID[e.Base().ID] = e
	}
	moved := byID[movedID]

	out := make([]E, 0, len(collection)+1)
	for i, e := range collection {
		if i == insertAt {
			out = append(out, moved)
		}
		if r, ok := byID[e.Base().ID]; ok {
			e = r
		}
		out = append(out, e)
	}
	if insertAt < 0 || insertAt >= len(collection) {
		out = append(out, moved)
	}
	return out
}

package model

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateID     = errors.New("duplicate entry id")
	ErrInvalidID       = errors.New("entry id must be positive")
	ErrInvalidDuration = errors.New("entry duration must be positive")
	ErrChildOutside    = errors.New("child entry outside its container")
)

// Validate checks the invariants a collection must satisfy before it can be
// laid out: unique positive IDs across all levels, positive durations, and
// children contained in their container. Child ParentIDs need no check:
// NewContainer and WithChildren always retag them.
func Validate(entries []Entry) error {
	seen := make(map[int]struct{})
	check := func(b Base) error {
		if b.ID <= 0 {
			return fmt.Errorf("model: %w: %d", ErrInvalidID, b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("model: %w: %d", ErrDuplicateID, b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.Duration <= 0 {
			return fmt.Errorf("model: %w: id=%d duration=%d", ErrInvalidDuration, b.ID, b.Duration)
		}
		return nil
	}

	for _, e := range entries {
		b := e.Base()
		if err := check(b); err != nil {
			return err
		}
		c, ok := e.(Container)
		if !ok {
			continue
		}
		for _, ch := range c.children {
			cb := ch.Base()
			if err := check(cb); err != nil {
				return err
			}
			if !b.Contains(cb) {
				return fmt.Errorf("model: %w: id=%d container=%d", ErrChildOutside, cb.ID, b.ID)
			}
		}
	}
	return nil
}

// Location describes where an entry lives in a top-level collection.
type Location struct {
	Entry Entry
	// Index is the position in the top-level slice, or in the container's
	// children when Parent is set.
	Index int
	// Parent is the owning container for child entries.
	Parent *Container
	// ParentIndex is the container's position in the top-level slice.
	ParentIndex int
}

// Find looks an ID up at the top level and inside every container.
func Find(entries []Entry, id int) (Location, bool) {
	for i, e := range entries {
		if e.Base().ID == id {
			return Location{Entry: e, Index: i, ParentIndex: -1}, true
		}
	}
	for i, e := range entries {
		c, ok := e.(Container)
		if !ok {
			continue
		}
		for j, ch := range c.children {
			if ch.Base().ID == id {
				parent := c
				return Location{Entry: ch, Index: j, Parent: &parent, ParentIndex: i}, true
			}
		}
	}
	return Location{}, false
}

// Count returns the number of entries at all levels.
func Count(entries []Entry) int {
	n := len(entries)
	for _, e := range entries {
		if c, ok := e.(Container); ok {
			n += len(c.children)
		}
	}
	return n
}

package model

import "time"

// Kind identifies which variant of Entry a value is.
type Kind string

const (
	KindContribution Kind = "contribution"
	KindBreak        Kind = "break"
	KindContainer    Kind = "container"
)

// Geometry is the computed placement of an entry. It is regenerated on every
// layout pass; between passes it only serves as the seed ordering for column
// assignment and move reconciliation.
type Geometry struct {
	// Column is the 0-based horizontal slot inside the owning group.
	Column int `json:"column" yaml:"column"`
	// MaxColumn is the highest column index used by the owning group.
	MaxColumn int `json:"max_column" yaml:"max_column"`

	// Width and X are percentages of the row (or of the container).
	Width float64 `json:"width" yaml:"width"`
	X     float64 `json:"x" yaml:"x"`

	// Y is the vertical pixel offset: from the start of the day for top-level
	// entries, from the container start for children.
	Y int `json:"y" yaml:"y"`
}

// Base holds the fields shared by every entry variant.
type Base struct {
	ID       int       `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Start    time.Time `json:"start" yaml:"start"`
	Duration int       `json:"duration" yaml:"duration"` // minutes

	// ParentID is the owning container's ID, or 0 at top level.
	ParentID int `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`

	Geometry `yaml:",inline"`
}

// End returns the exclusive end of the entry's time window.
func (b Base) End() time.Time {
	return b.Start.Add(time.Duration(b.Duration) * time.Minute)
}

// Contains reports whether other's window lies within b's window.
func (b Base) Contains(other Base) bool {
	return !other.Start.Before(b.Start) && !other.End().After(b.End())
}

// Shift returns a copy of b moved by the given number of minutes.
func (b Base) Shift(minutes int) Base {
	b.Start = b.Start.Add(time.Duration(minutes) * time.Minute)
	return b
}

// Entry is a schedulable item. The set of implementations is closed:
// Contribution, Break and Container.
type Entry interface {
	Kind() Kind
	Base() Base
	// WithBase returns a copy of the entry carrying b. The variant, and for a
	// container its children, are preserved.
	WithBase(b Base) Entry

	sealed()
}

// Leaf is an entry that may live inside a container. Container does not
// implement Leaf, so containers never nest.
type Leaf interface {
	Entry
	leaf()
}

// Contribution is a regular talk or session slot.
type Contribution struct {
	base Base
}

// NewContribution returns a contribution carrying b.
func NewContribution(b Base) Contribution {
	return Contribution{base: b}
}

func (c Contribution) Kind() Kind { return KindContribution }

func (c Contribution) Base() Base { return c.base }

func (c Contribution) WithBase(b Base) Entry {
	c.base = b
	return c
}

func (Contribution) sealed() {}
func (Contribution) leaf()   {}

// Break is a pause. Breaks are the only entries that may be moved across a
// container boundary.
type Break struct {
	base Base
}

// NewBreak returns a break carrying b.
func NewBreak(b Base) Break {
	return Break{base: b}
}

func (b Break) Kind() Kind { return KindBreak }

func (b Break) Base() Base { return b.base }

func (b Break) WithBase(nb Base) Entry {
	b.base = nb
	return b
}

func (Break) sealed() {}
func (Break) leaf()   {}

// Container is a block owning an ordered set of children, each constrained to
// the container's window.
type Container struct {
	base     Base
	children []Leaf
}

// NewContainer returns a container carrying b and children. Children are
// re-tagged with the container's ID.
func NewContainer(b Base, children ...Leaf) Container {
	c := Container{base: b}
	return c.WithChildren(children)
}

func (c Container) Kind() Kind { return KindContainer }

func (c Container) Base() Base { return c.base }

// WithBase replaces the container's own fields. Children keep their windows;
// callers moving a container shift them explicitly.
func (c Container) WithBase(b Base) Entry {
	c.base = b
	if len(c.children) > 0 && c.children[0].Base().ParentID != b.ID {
		return c.WithChildren(c.children)
	}
	return c
}

func (Container) sealed() {}

// Children returns a copy of the container's children.
func (c Container) Children() []Leaf {
	out := make([]Leaf, len(c.children))
	copy(out, c.children)
	return out
}

// WithChildren returns a copy of c holding children, each tagged with c's ID.
func (c Container) WithChildren(children []Leaf) Container {
	out := make([]Leaf, len(children))
	for i, ch := range children {
		b := ch.Base()
		if b.ParentID != c.base.ID {
			b.ParentID = c.base.ID
			ch = With(ch, b)
		}
		out[i] = ch
	}
	c.children = out
	return c
}

// LatestChildEnd returns the end of the latest-ending child and false when the
// container is empty.
func (c Container) LatestChildEnd() (time.Time, bool) {
	var latest time.Time
	for i, ch := range c.children {
		end := ch.Base().End()
		if i == 0 || end.After(latest) {
			latest = end
		}
	}
	return latest, len(c.children) > 0
}

// With returns e with its base replaced, keeping e's static type. It is the
// generic counterpart of Entry.WithBase.
func With[E Entry](e E, b Base) E {
	return e.WithBase(b).(E)
}

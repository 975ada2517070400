package layout

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/tomasr8/new-timetable/internal/model"
)

var testDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return testDay.Add(time.Duration(minutes) * time.Minute)
}

func base(id, start, duration int) model.Base {
	return model.Base{ID: id, Title: "entry", Start: at(start), Duration: duration}
}

func contrib(id, start, duration int) model.Entry {
	return model.NewContribution(base(id, start, duration))
}

func placedAt(b model.Base, column, maxColumn int) model.Base {
	b.Column = column
	b.MaxColumn = maxColumn
	return b
}

func byID[E model.Entry](entries []E) map[int]model.Base {
	out := make(map[int]model.Base, len(entries))
	for _, e := range entries {
		out[e.Base().ID] = e.Base()
	}
	return out
}

// checkLayout asserts the invariants every laid-out collection must satisfy,
// recursing into container children.
func checkLayout[E model.Entry](t *testing.T, entries []E) {
	t.Helper()

	for _, g := range Groups(entries) {
		group := Members(g, entries)
		maxColumn := group[0].Base().MaxColumn
		used := make(map[int]bool)
		widthByColumn := make(map[int]float64)
		for _, e := range group {
			b := e.Base()
			if b.MaxColumn != maxColumn {
				t.Fatalf("entry %d: expected maxColumn %d shared by its group, got %d", b.ID, maxColumn, b.MaxColumn)
			}
			if b.Column < 0 || b.Column > b.MaxColumn {
				t.Fatalf("entry %d: column %d outside [0, %d]", b.ID, b.Column, b.MaxColumn)
			}
			if math.Abs(b.X-float64(b.Column)*b.Width) > 1e-9 {
				t.Fatalf("entry %d: expected x %v, got %v", b.ID, float64(b.Column)*b.Width, b.X)
			}
			used[b.Column] = true
			widthByColumn[b.Column] = b.Width
		}
		for c := 0; c <= maxColumn; c++ {
			if !used[c] {
				t.Fatalf("group %v: column %d unused (maxColumn %d)", g.IDs(), c, maxColumn)
			}
		}
		total := 0.0
		for _, w := range widthByColumn {
			total += w
		}
		if math.Abs(total-100) > 1e-9 {
			t.Fatalf("group %v: column widths sum to %v, want 100", g.IDs(), total)
		}
		for i, a := range group {
			for _, b := range group[i+1:] {
				ab, bb := a.Base(), b.Base()
				if Overlaps(ab, bb) && ab.Column == bb.Column {
					t.Fatalf("entries %d and %d overlap and share column %d", ab.ID, bb.ID, ab.Column)
				}
			}
		}
	}

	for _, e := range entries {
		c, ok := any(e).(model.Container)
		if !ok {
			continue
		}
		for _, ch := range c.Children() {
			if !c.Base().Contains(ch.Base()) {
				t.Fatalf("child %d escapes container %d", ch.Base().ID, c.Base().ID)
			}
		}
		checkLayout(t, c.Children())
	}
}

// randomDay builds a reproducible collection of top-level entries and
// containers with children.
func randomDay(seed uint64, n int) []model.Entry {
	r := rand.New(rand.NewPCG(seed, 0x7e57))
	entries := make([]model.Entry, 0, n)
	id := 1
	for len(entries) < n {
		start := r.IntN(120) * 5
		duration := 10 + r.IntN(24)*5
		switch r.IntN(5) {
		case 0:
			duration = 60 + r.IntN(12)*10
			cb := base(id, start, duration)
			id++
			var children []model.Leaf
			for k := r.IntN(5); k > 0; k-- {
				cs := start + r.IntN(duration/5)*5
				cd := 5 + r.IntN((start+duration-cs)/5)*5
				if cs+cd > start+duration {
					cd = start + duration - cs
				}
				if cd <= 0 {
					continue
				}
				children = append(children, model.NewContribution(base(id, cs, cd)))
				id++
			}
			entries = append(entries, model.NewContainer(cb, children...))
		case 1:
			entries = append(entries, model.NewBreak(base(id, start, duration)))
			id++
		default:
			entries = append(entries, contrib(id, start, duration))
			id++
		}
	}
	return entries
}

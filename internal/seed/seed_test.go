package seed

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomasr8/new-timetable/internal/model"
)

func TestSampleParses(t *testing.T) {
	entries, err := Sample(time.UTC)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(entries) != 9 {
		t.Fatalf("expected 9 top-level entries, got %d", len(entries))
	}
	if got := model.Count(entries); got != 13 {
		t.Fatalf("expected 13 entries in total, got %d", got)
	}

	loc, ok := model.Find(entries, 12)
	if !ok || loc.Parent == nil || loc.Parent.Base().ID != 10 {
		t.Fatalf("expected entry 12 inside container 10")
	}
	want := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if b := loc.Entry.Base(); !b.Start.Equal(want) || b.ParentID != 10 {
		t.Fatalf("expected HPC 2 at %s with parent 10, got %s parent %d", want, b.Start, b.ParentID)
	}
	if entries[0].Kind() != model.KindBreak {
		t.Fatalf("expected first entry to be a break, got %s", entries[0].Kind())
	}
}

func TestParseAcceptsShortKindsAndTimestamps(t *testing.T) {
	doc := `
day: 2024-03-10
entries:
  - kind: block
    id: 1
    title: Session
    start: "2024-03-10T09:00:00Z"
    duration: 90
    children:
      - {kind: contrib, id: 2, title: Talk, start: "09:30", duration: 30}
`
	entries, err := Parse([]byte(doc), time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := entries[0].(model.Container)
	if !ok {
		t.Fatalf("expected container, got %T", entries[0])
	}
	children := c.Children()
	if len(children) != 1 || children[0].Kind() != model.KindContribution {
		t.Fatalf("expected one contribution child, got %d", len(children))
	}
	if got := children[0].Base().Start; !got.Equal(time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected child start %s", got)
	}
}

func TestParseRejectsBadSeeds(t *testing.T) {
	cases := map[string]string{
		"unknown kind":   "entries: [{kind: lecture, id: 1, start: '01:00', duration: 10}]",
		"bad start":      "entries: [{kind: break, id: 1, start: 'noon', duration: 10}]",
		"nested":         "entries: [{kind: container, id: 1, start: '01:00', duration: 60, children: [{kind: container, id: 2, start: '01:00', duration: 10}]}]",
		"leaf children":  "entries: [{kind: break, id: 1, start: '01:00', duration: 60, children: [{kind: break, id: 2, start: '01:00', duration: 10}]}]",
		"zero duration":  "entries: [{kind: break, id: 1, start: '01:00', duration: 0}]",
		"child outside":  "entries: [{kind: container, id: 1, start: '01:00', duration: 60, children: [{kind: break, id: 2, start: '01:30', duration: 60}]}]",
		"bad day":        "day: tomorrow\nentries: []",
		"malformed yaml": "entries: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), time.UTC); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	_, err := Parse([]byte("entries: [{kind: break, id: 1, start: '01:00', duration: 0}]"), time.UTC)
	if !errors.Is(err, model.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestEncodeRoundTripsWindows(t *testing.T) {
	entries, err := Sample(time.UTC)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	data, err := Encode(entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), "geometry:") {
		t.Fatalf("expected geometry in output:\n%s", data)
	}

	path := filepath.Join(t.TempDir(), "day.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	again, err := Load(path, time.UTC)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if model.Count(again) != model.Count(entries) {
		t.Fatalf("expected %d entries, got %d", model.Count(entries), model.Count(again))
	}
	for i := range entries {
		a, b := entries[i].Base(), again[i].Base()
		if a.ID != b.ID || !a.Start.Equal(b.Start) || a.Duration != b.Duration || entries[i].Kind() != again[i].Kind() {
			t.Fatalf("entry %d changed: %+v vs %+v", a.ID, a, b)
		}
	}
}

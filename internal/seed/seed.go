// Package seed reads and writes the YAML description of one timetable day.
//
// A seed file looks like:
//
//	day: 2024-01-01
//	entries:
//	  - kind: break
//	    id: 1
//	    title: Lunch break
//	    start: "05:00"
//	    duration: 60
//	  - kind: container
//	    id: 7
//	    title: Scientific Computing
//	    start: "06:00"
//	    duration: 120
//	    children:
//	      - {kind: contribution, id: 8, title: SC 1, start: "06:00", duration: 60}
//
// start is either a wall clock time on day or an RFC 3339 timestamp.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomasr8/new-timetable/internal/model"
)

const (
	dayLayout   = "2006-01-02"
	clockLayout = "15:04"
)

// File is the on-disk shape of a seed.
type File struct {
	Day     string      `yaml:"day"`
	Entries []EntrySpec `yaml:"entries"`
}

// EntrySpec describes one entry. Geometry is only written, never read.
type EntrySpec struct {
	Kind     string          `yaml:"kind"`
	ID       int             `yaml:"id"`
	Title    string          `yaml:"title"`
	Start    string          `yaml:"start"`
	Duration int             `yaml:"duration"`
	Geometry *model.Geometry `yaml:"geometry,omitempty"`
	Children []EntrySpec     `yaml:"children,omitempty"`
}

// ParseKind maps a kind name to a model.Kind. The short names "contrib" and
// "block" are accepted too.
func ParseKind(s string) (model.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contribution", "contrib", "":
		return model.KindContribution, nil
	case "break":
		return model.KindBreak, nil
	case "container", "block":
		return model.KindContainer, nil
	default:
		return "", fmt.Errorf("seed: unknown entry kind %q", s)
	}
}

// Load reads a seed file. Times without a zone are placed in loc.
func Load(path string, loc *time.Location) ([]model.Entry, error) {
	if path == "" {
		return nil, errors.New("seed: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, loc)
}

// Parse decodes a seed document.
func Parse(data []byte, loc *time.Location) ([]model.Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	day := layoutDay(time.Now().In(loc))
	if f.Day != "" {
		d, err := time.ParseInLocation(dayLayout, f.Day, loc)
		if err != nil {
			return nil, fmt.Errorf("seed: day: %w", err)
		}
		day = d
	}

	entries := make([]model.Entry, 0, len(f.Entries))
	for _, spec := range f.Entries {
		e, err := spec.toEntry(day, 0)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := model.Validate(entries); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return entries, nil
}

func (s EntrySpec) toEntry(day time.Time, parentID int) (model.Entry, error) {
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	start, err := parseStart(s.Start, day)
	if err != nil {
		return nil, fmt.Errorf("seed: entry %d: %w", s.ID, err)
	}
	b := model.Base{
		ID:       s.ID,
		Title:    s.Title,
		Start:    start,
		Duration: s.Duration,
		ParentID: parentID,
	}

	switch kind {
	case model.KindBreak:
		return model.NewBreak(b), nil
	case model.KindContainer:
		if parentID != 0 {
			return nil, fmt.Errorf("seed: entry %d: containers cannot be nested", s.ID)
		}
		children := make([]model.Leaf, 0, len(s.Children))
		for _, cs := range s.Children {
			ch, err := cs.toEntry(day, s.ID)
			if err != nil {
				return nil, err
			}
			children = append(children, ch.(model.Leaf))
		}
		return model.NewContainer(b, children...), nil
	default:
		if len(s.Children) > 0 {
			return nil, fmt.Errorf("seed: entry %d: only containers have children", s.ID)
		}
		return model.NewContribution(b), nil
	}
}

func parseStart(v string, day time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("start is empty")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(day.Location()), nil
	}
	clock, err := time.Parse(clockLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("start %q: want HH:MM or RFC 3339", v)
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
}

func layoutDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Encode renders entries, including their geometry, as a seed document.
func Encode(entries []model.Entry) ([]byte, error) {
	f := File{Entries: make([]EntrySpec, 0, len(entries))}
	if len(entries) > 0 {
		f.Day = entries[0].Base().Start.Format(dayLayout)
	}
	for _, e := range entries {
		f.Entries = append(f.Entries, specOf(e))
	}
	return yaml.Marshal(&f)
}

func specOf(e model.Entry) EntrySpec {
	b := e.Base()
	g := b.Geometry
	s := EntrySpec{
		Kind:     string(e.Kind()),
		ID:       b.ID,
		Title:    b.Title,
		Start:    b.Start.Format(time.RFC3339),
		Duration: b.Duration,
		Geometry: &g,
	}
	if c, ok := e.(model.Container); ok {
		for _, ch := range c.Children() {
			s.Children = append(s.Children, specOf(ch))
		}
	}
	return s
}

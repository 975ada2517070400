package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "github.com/tomasr8/new-timetable/internal/log"
	"github.com/tomasr8/new-timetable/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// Occurrence is one concrete instance of a ParsedEvent on the imported day.
type Occurrence struct {
	UID       string
	Summary   string
	Kind      model.Kind
	ParentUID string
	Start     time.Time
	End       time.Time
}

// Minutes is the occurrence length rounded to whole minutes.
func (o Occurrence) Minutes() int {
	return int(o.End.Sub(o.Start).Round(time.Minute) / time.Minute)
}

// ExpandConfig selects the day to expand onto.
type ExpandConfig struct {
	// Day is any instant on the wanted day; it is truncated to midnight in
	// Location.
	Day time.Time
	// Location is the zone the timetable is drawn in. If nil, time.Local.
	Location *time.Location

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means the default.
	MaxOccurrencesPerEvent int
}

func (c ExpandConfig) window() (time.Time, time.Time) {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	d := c.Day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ExpandDay turns events into the occurrences that lie entirely within the
// configured day, sorted by start then UID.
//
// All-day events and occurrences that cross midnight are dropped: the
// timetable grid covers exactly one day.
func ExpandDay(events []ParsedEvent, cfg ExpandConfig) ([]Occurrence, error) {
	if cfg.Day.IsZero() {
		return nil, errors.New("expand: day is not set")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	dayStart, dayEnd := cfg.window()

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]Occurrence, 0)
	for uid, bases := range baseByUID {
		for _, ev := range latest(bases) {
			var times []time.Time
			if ev.RawRRule == "" {
				times = []time.Time{ev.Start}
			} else {
				var hitCap bool
				times, hitCap = recurrences(ev, dayStart, dayEnd, cfg.MaxOccurrencesPerEvent)
				if hitCap {
					appLog.Warn("expand: occurrences truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
				}
			}

			length := ev.End.Sub(ev.Start)
			for _, t := range times {
				inst := ev
				start, end := t, t.Add(length)
				if o, ok := findOverride(overridesByUID[uid], t); ok {
					inst = o
					start, end = o.Start, o.End
				}
				if inst.AllDay {
					continue
				}
				if start.Before(dayStart) || end.After(dayEnd) || !end.After(start) {
					continue
				}
				if end.Sub(start).Round(time.Minute) < time.Minute {
					appLog.Warn("expand: occurrence shorter than a minute skipped", "uid", uid, "start", start.Format(time.RFC3339))
					continue
				}
				out = append(out, Occurrence{
					UID:       uid,
					Summary:   inst.Summary,
					Kind:      ev.Kind,
					ParentUID: ev.ParentUID,
					Start:     start.In(dayStart.Location()),
					End:       end.In(dayStart.Location()),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

// recurrences returns the RRULE instants whose occurrence could touch
// [from, to), honoring EXDATE.
func recurrences(ev ParsedEvent, from, to time.Time, limit int) ([]time.Time, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen by the event length so instances starting the previous evening
	// are seen and then rejected by the caller.
	length := ev.End.Sub(ev.Start)
	times := set.Between(from.Add(-length).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(times) > limit {
		return times[:limit], true
	}
	return times, false
}

// findOverride returns the RECURRENCE-ID override of instance with the highest
// SEQUENCE.
func findOverride(overrides []ParsedEvent, instance time.Time) (ParsedEvent, bool) {
	var (
		best  ParsedEvent
		found bool
	)
	for _, ov := range overrides {
		if ov.Recurrence == nil || !ov.Recurrence.Equal(instance) {
			continue
		}
		if !found || ov.Seq >= best.Seq {
			best, found = ov, true
		}
	}
	return best, found
}

// latest keeps the revisions of one UID carrying the highest SEQUENCE. Feeds
// that merge several exports can repeat an event at older revisions.
func latest(events []ParsedEvent) []ParsedEvent {
	top := events[0].Seq
	for _, ev := range events[1:] {
		top = max(top, ev.Seq)
	}
	out := make([]ParsedEvent, 0, len(events))
	for _, ev := range events {
		if ev.Seq == top {
			out = append(out, ev)
		}
	}
	return out
}

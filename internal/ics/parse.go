// Package ics imports one day of timetable entries from an iCalendar feed.
//
// Feeds map onto entries as follows:
//
//   - X-TIMETABLE-KIND (contribution, break, container) sets the kind
//     explicitly. Otherwise CATEGORIES containing "break" makes a break and
//     "session", "block" or "container" makes a container.
//   - RELATED-TO (RELTYPE=PARENT, the default) names the container an event
//     belongs to. Events referenced this way become containers.
//   - RRULE, EXDATE and RECURRENCE-ID are honored when expanding the day.
//   - All-day events are skipped; they have no place on a time grid.
package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/tomasr8/new-timetable/internal/log"
	"github.com/tomasr8/new-timetable/internal/model"
)

const (
	propertyKind         = ical.ComponentProperty("X-TIMETABLE-KIND")
	propertyRelatedTo    = ical.ComponentProperty("RELATED-TO")
	propertyCategories   = ical.ComponentProperty("CATEGORIES")
	propertyRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
)

// ParsedEvent is a VEVENT reduced to what the timetable needs. Recurrence is
// kept unexpanded.
type ParsedEvent struct {
	Source Source

	UID     string
	Seq     int
	Summary string

	Kind      model.Kind
	KindSet   bool   // Kind came from the feed rather than the default
	ParentUID string // RELATED-TO with RELTYPE=PARENT

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool
}

// ParseICS parses a single ICS payload. Malformed events are logged and
// skipped; the error is reserved for payloads that are not calendars at all.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", src.ID)
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "source", src.ID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}
	markParents(events)

	appLog.Info("ics parse completed", "source", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src, Kind: model.KindContribution}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, err
	}
	out.Start = start
	out.End = end

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
	}

	if kind, ok := explicitKind(ve); ok {
		out.Kind = kind
		out.KindSet = true
	}

	for _, p := range ve.GetProperties(propertyRelatedTo) {
		rel := "PARENT"
		if vs := p.ICalParameters["RELTYPE"]; len(vs) > 0 {
			rel = strings.ToUpper(vs[0])
		}
		if rel == "PARENT" && p.Value != "" {
			out.ParentUID = p.Value
			break
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(propertyRecurrenceID); p != nil {
		if t, err := parseICSTime(p.Value, start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func explicitKind(ve *ical.VEvent) (model.Kind, bool) {
	if p := ve.GetProperty(propertyKind); p != nil {
		switch model.Kind(strings.ToLower(strings.TrimSpace(p.Value))) {
		case model.KindContribution:
			return model.KindContribution, true
		case model.KindBreak:
			return model.KindBreak, true
		case model.KindContainer:
			return model.KindContainer, true
		}
	}
	for _, p := range ve.GetProperties(propertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			switch strings.ToLower(strings.TrimSpace(c)) {
			case "break":
				return model.KindBreak, true
			case "session", "block", "container":
				return model.KindContainer, true
			}
		}
	}
	return "", false
}

// markParents turns events referenced as a parent into containers unless the
// feed said otherwise.
func markParents(events []ParsedEvent) {
	parents := make(map[string]struct{})
	for _, ev := range events {
		if ev.ParentUID != "" {
			parents[ev.ParentUID] = struct{}{}
		}
	}
	for i := range events {
		if _, ok := parents[events[i].UID]; ok && !events[i].KindSet {
			events[i].Kind = model.KindContainer
		}
	}
}

// parseICSTime parses a bare DATE or DATE-TIME value as found in EXDATE and
// RECURRENCE-ID. Floating times are placed in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

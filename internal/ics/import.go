package ics

import (
	"context"
	"fmt"
	"time"

	appLog "github.com/tomasr8/new-timetable/internal/log"
	"github.com/tomasr8/new-timetable/internal/model"
)

// ToEntries builds timetable entries from sorted occurrences. IDs are assigned
// sequentially from 1 in occurrence order.
//
// An occurrence with a ParentUID becomes a child of the first container
// occurrence of that UID whose window contains it. When there is none, or
// the child is itself a container, it is kept at top level and a warning is
// logged.
func ToEntries(occs []Occurrence) []model.Entry {
	slots := make([]*slot, len(occs))
	containers := make(map[string][]*slot)
	for i, o := range occs {
		slots[i] = &slot{
			base: model.Base{
				ID:       i + 1,
				Title:    o.Summary,
				Start:    o.Start,
				Duration: o.Minutes(),
			},
			kind: o.Kind,
		}
		if o.Kind == model.KindContainer {
			containers[o.UID] = append(containers[o.UID], slots[i])
		}
	}

	top := make([]*slot, 0, len(occs))
	for i, o := range occs {
		s := slots[i]
		if o.ParentUID != "" && o.Kind != model.KindContainer {
			if parent := containing(containers[o.ParentUID], s.base); parent != nil {
				s.base.ParentID = parent.base.ID
				parent.children = append(parent.children, leafOf(s.kind, s.base))
				continue
			}
		}
		if o.ParentUID != "" {
			appLog.Warn("ics: child kept at top level", "uid", o.UID, "parent_uid", o.ParentUID)
		}
		top = append(top, s)
	}

	out := make([]model.Entry, 0, len(top))
	for _, s := range top {
		if s.kind == model.KindContainer {
			out = append(out, model.NewContainer(s.base, s.children...))
			continue
		}
		out = append(out, leafOf(s.kind, s.base))
	}
	return out
}

type slot struct {
	base     model.Base
	kind     model.Kind
	children []model.Leaf
}

func containing(candidates []*slot, b model.Base) *slot {
	for _, c := range candidates {
		if c.base.Contains(b) {
			return c
		}
	}
	return nil
}

func leafOf(kind model.Kind, b model.Base) model.Leaf {
	if kind == model.KindBreak {
		return model.NewBreak(b)
	}
	return model.NewContribution(b)
}

// Import fetches src and returns the entries of the day containing day, in
// loc. The returned FetchResult tells the caller whether the feed changed.
func Import(ctx context.Context, f *Fetcher, src Source, day time.Time, loc *time.Location) ([]model.Entry, FetchResult, error) {
	res, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, FetchResult{}, err
	}
	events, err := ParseICS(src, res.Body)
	if err != nil {
		return nil, res, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}
	occs, err := ExpandDay(events, ExpandConfig{Day: day, Location: loc})
	if err != nil {
		return nil, res, err
	}
	entries := ToEntries(occs)
	if err := model.Validate(entries); err != nil {
		return nil, res, fmt.Errorf("ics: %w", err)
	}
	return entries, res, nil
}

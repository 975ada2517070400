package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tomasr8/new-timetable/internal/config"
	"github.com/tomasr8/new-timetable/internal/ics"
	appLog "github.com/tomasr8/new-timetable/internal/log"
	"github.com/tomasr8/new-timetable/internal/model"
	"github.com/tomasr8/new-timetable/internal/seed"
	"github.com/tomasr8/new-timetable/internal/web"
)

// newSeedLoader picks the seed source: an explicit YAML file first, then an
// ICS feed or file, then the built-in sample day. The returned name is used
// for logging.
func newSeedLoader(seedCfg config.SeedConfig, loc *time.Location) (web.LoadFunc, string, error) {
	switch {
	case seedCfg.File != "":
		return yamlLoader(seedCfg.File, loc), "yaml:" + seedCfg.File, nil

	case seedCfg.ICSURL != "" || seedCfg.ICSFile != "":
		src := ics.Source{ID: "seed", URL: seedCfg.ICSURL}
		name := "ics:" + seedCfg.ICSURL
		if seedCfg.ICSURL == "" {
			src = ics.Source{ID: "seed", Path: seedCfg.ICSFile}
			name = "ics:" + seedCfg.ICSFile
		}
		day, err := parseDay(seedCfg.Day, loc)
		if err != nil {
			return nil, "", err
		}
		return icsLoader(ics.NewFetcher(nil), src, day, loc), name, nil

	default:
		var once sync.Once
		return func(context.Context) ([]model.Entry, bool, error) {
			changed := false
			once.Do(func() { changed = true })
			entries, err := seed.Sample(loc)
			return entries, changed, err
		}, "sample", nil
	}
}

// yamlLoader reports a change whenever the file's modification time moves.
func yamlLoader(path string, loc *time.Location) web.LoadFunc {
	var (
		mu      sync.Mutex
		lastMod time.Time
	)
	return func(context.Context) ([]model.Entry, bool, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, false, err
		}
		entries, err := seed.Load(path, loc)
		if err != nil {
			return nil, false, err
		}

		mu.Lock()
		defer mu.Unlock()
		changed := !info.ModTime().Equal(lastMod)
		lastMod = info.ModTime()
		return entries, changed, nil
	}
}

// icsLoader imports one day of the feed. A zero day follows the wall clock,
// so a refresh after midnight counts as a change.
func icsLoader(f *ics.Fetcher, src ics.Source, day time.Time, loc *time.Location) web.LoadFunc {
	var (
		mu      sync.Mutex
		lastDay string
	)
	return func(ctx context.Context) ([]model.Entry, bool, error) {
		d := day
		if d.IsZero() {
			d = time.Now().In(loc)
		}
		entries, res, err := ics.Import(ctx, f, src, d, loc)
		if err != nil {
			return nil, false, err
		}

		key := d.Format(time.DateOnly)
		mu.Lock()
		defer mu.Unlock()
		changed := res.Changed || key != lastDay
		lastDay = key
		appLog.Debug("ics seed imported", "day", key, "entries", model.Count(entries), "changed", changed)
		return entries, changed, nil
	}
}

func parseDay(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("seed day %q: %w", v, err)
	}
	return d, nil
}

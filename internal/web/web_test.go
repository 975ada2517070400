package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomasr8/new-timetable/internal/config"
	"github.com/tomasr8/new-timetable/internal/layout"
	"github.com/tomasr8/new-timetable/internal/model"
	"github.com/tomasr8/new-timetable/internal/seed"
	"github.com/tomasr8/new-timetable/internal/timetable"
)

type fakeSource struct {
	calls   int
	changed bool
	err     error
}

func (f *fakeSource) load(context.Context) ([]model.Entry, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	entries, err := seed.Sample(time.UTC)
	return entries, f.changed, err
}

func newTestServer(t *testing.T, cfg *config.Config, src *fakeSource) (*Server, *timetable.Board) {
	t.Helper()
	entries, err := seed.Sample(time.UTC)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	snap, err := timetable.New(entries, timetable.Options{
		Layout:      layout.Options{PixelsPerMinute: cfg.PixelsPerMinute},
		MinDuration: cfg.MinDurationMinutes,
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	board := timetable.NewBoard(snap)
	var load LoadFunc
	if src != nil {
		load = src.load
	}
	return NewServer(cfg, board, load), board
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) snapshotResponse {
	t.Helper()
	var resp snapshotResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func findDTO(entries []entryDTO, id int) (entryDTO, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
		if ch, ok := findDTO(e.Children, id); ok {
			return ch, true
		}
	}
	return entryDTO{}, false
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestEntries(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/entries", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeSnapshot(t, rec)
	if resp.Version != 1 || resp.PixelsPerMinute != 2 || resp.SnapMinutes != 5 {
		t.Fatalf("unexpected header fields %+v", resp)
	}
	if len(resp.Entries) != 9 {
		t.Fatalf("expected 9 top-level entries, got %d", len(resp.Entries))
	}
	c, ok := findDTO(resp.Entries, 7)
	if !ok || c.Kind != model.KindContainer || len(c.Children) != 2 {
		t.Fatalf("expected container 7 with two children, got %+v", c)
	}
	if ch := c.Children[0]; ch.ParentID != 7 || ch.Y != 0 || ch.Width != 100 {
		t.Fatalf("unexpected child geometry %+v", ch)
	}
	if e, _ := findDTO(resp.Entries, 3); e.Y != 360 || !e.End.Equal(e.Start.Add(30*time.Minute)) {
		t.Fatalf("unexpected entry 3 %+v", e)
	}
}

func TestResize(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"ok", "/api/entries/3/resize", `{"duration": 45}`, http.StatusOK},
		{"too short", "/api/entries/3/resize", `{"duration": 5}`, http.StatusConflict},
		{"container before children", "/api/entries/7/resize", `{"duration": 60}`, http.StatusConflict},
		{"child past container", "/api/entries/9/resize", `{"duration": 90}`, http.StatusConflict},
		{"unknown id", "/api/entries/99/resize", `{"duration": 45}`, http.StatusNotFound},
		{"bad id", "/api/entries/abc/resize", `{"duration": 45}`, http.StatusBadRequest},
		{"missing duration", "/api/entries/3/resize", `{}`, http.StatusBadRequest},
		{"unknown field", "/api/entries/3/resize", `{"minutes": 45}`, http.StatusBadRequest},
		{"malformed", "/api/entries/3/resize", `{"duration":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, board := newTestServer(t, config.DefaultConfig(), nil)
			rec := do(t, s.Handler(), http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			_, version := board.Current()
			if tc.status == http.StatusOK && version != 2 {
				t.Fatalf("expected version 2 after commit, got %d", version)
			}
			if tc.status != http.StatusOK && version != 1 {
				t.Fatalf("expected rejected gesture to keep version 1, got %d", version)
			}
		})
	}

	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	resp := decodeSnapshot(t, do(t, s.Handler(), http.MethodPost, "/api/entries/3/resize", `{"duration": 45}`))
	if e, _ := findDTO(resp.Entries, 3); e.Duration != 45 {
		t.Fatalf("expected duration 45, got %d", e.Duration)
	}
}

func TestConcurrentResizesReportOwnCommit(t *testing.T) {
	s, board := newTestServer(t, config.DefaultConfig(), nil)
	h := s.Handler()

	durations := []int{35, 40, 45, 50, 55, 60, 65, 70}
	type result struct {
		duration int
		resp     snapshotResponse
		code     int
	}
	results := make(chan result, len(durations))
	var wg sync.WaitGroup
	for _, d := range durations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/entries/3/resize", strings.NewReader(fmt.Sprintf(`{"duration": %d}`, d)))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			var resp snapshotResponse
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			results <- result{duration: d, resp: resp, code: rec.Code}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool)
	for r := range results {
		if r.code != http.StatusOK {
			t.Fatalf("resize to %d: expected 200, got %d", r.duration, r.code)
		}
		if e, _ := findDTO(r.resp.Entries, 3); e.Duration != r.duration {
			t.Fatalf("resize to %d answered with duration %d (version %d)", r.duration, e.Duration, r.resp.Version)
		}
		if seen[r.resp.Version] {
			t.Fatalf("version %d reported by two gestures", r.resp.Version)
		}
		seen[r.resp.Version] = true
	}
	if _, version := board.Current(); version != uint64(len(durations))+1 {
		t.Fatalf("expected version %d, got %d", len(durations)+1, version)
	}
}

func TestMoveSnapsDelta(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	rec := do(t, s.Handler(), http.MethodPost, "/api/entries/5/move", `{"target": 0, "delta_minutes": -32, "fraction": 0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSnapshot(t, rec)
	e, _ := findDTO(resp.Entries, 5)
	want := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	if !e.Start.Equal(want) || e.Column != 0 || e.MaxColumn != 1 {
		t.Fatalf("expected entry 5 at %s in column 0 of 2, got %+v", want, e)
	}
	if other, _ := findDTO(resp.Entries, 3); other.Column != 1 {
		t.Fatalf("expected entry 3 pushed to column 1, got %d", other.Column)
	}
}

func TestMoveRejections(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"contribution into container", "/api/entries/2/move", `{"target": 7, "delta_minutes": 0, "fraction": 0.5}`, http.StatusConflict},
		{"target is not a container", "/api/entries/13/move", `{"target": 3, "delta_minutes": 0, "fraction": 0.5}`, http.StatusConflict},
		{"unknown entry", "/api/entries/42/move", `{"target": 0}`, http.StatusNotFound},
		{"bad body", "/api/entries/2/move", `[]`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t, config.DefaultConfig(), nil)
			rec := do(t, s.Handler(), http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error == "" {
				t.Fatalf("expected JSON error body, got %v %q", err, body.Error)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	if rec := do(t, s.Handler(), http.MethodGet, "/api/entries/3/resize", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s, _ := newTestServer(t, cfg, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected /health to stay open, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/entries", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rec.Code)
	}
}

func TestReload(t *testing.T) {
	src := &fakeSource{}
	s, board := newTestServer(t, config.DefaultConfig(), src)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/entries/5/move", `{"target": 0, "delta_minutes": -30}`); rec.Code != http.StatusOK {
		t.Fatalf("move: %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSnapshot(t, rec)
	if resp.Version != 3 || src.calls != 1 {
		t.Fatalf("expected version 3 after one forced reload, got %d (calls %d)", resp.Version, src.calls)
	}
	if e, _ := findDTO(resp.Entries, 5); !e.Start.Equal(time.Date(2024, 1, 1, 3, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected reload to restore entry 5, got %s", e.Start)
	}

	src.err = errors.New("feed down")
	if rec := do(t, h, http.MethodPost, "/api/reload", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on failed reload, got %d", rec.Code)
	}
	if _, version := board.Current(); version != 3 {
		t.Fatalf("expected failed reload to keep version 3, got %d", version)
	}
}

func TestReloadWithoutSource(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	if rec := do(t, s.Handler(), http.MethodPost, "/api/reload", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a source, got %d", rec.Code)
	}
}

func TestRefreshOnlyWhenChanged(t *testing.T) {
	src := &fakeSource{}
	s, board := newTestServer(t, config.DefaultConfig(), src)

	replaced, err := s.Refresh(context.Background())
	if err != nil || replaced {
		t.Fatalf("expected unchanged source to keep board, got %v %v", replaced, err)
	}
	if _, version := board.Current(); version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}

	src.changed = true
	replaced, err = s.Refresh(context.Background())
	if err != nil || !replaced {
		t.Fatalf("expected changed source to replace board, got %v %v", replaced, err)
	}
	if _, version := board.Current(); version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestStartRefresh(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), &fakeSource{})

	stop, err := s.StartRefresh(context.Background(), "")
	if err != nil {
		t.Fatalf("empty spec: %v", err)
	}
	stop()

	if _, err := s.StartRefresh(context.Background(), "not a cron spec"); err == nil {
		t.Fatalf("expected error for invalid spec")
	}

	stop, err = s.StartRefresh(context.Background(), "@every 1h")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stop()
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, config.DefaultConfig(), nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	if _, err := uuid.Parse(rec.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("expected generated request id, got %q", rec.Header().Get(requestIDHeader))
	}

	want := "0b7e6f1c-3c9a-4d6e-9f55-2f1d3a7c8b90"
	req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	req.Header.Set(requestIDHeader, want)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != want {
		t.Fatalf("expected incoming request id to be kept, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got == "not-a-uuid" {
		t.Fatalf("expected malformed request id to be replaced")
	}
}

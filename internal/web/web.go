package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomasr8/new-timetable/internal/config"
	appLog "github.com/tomasr8/new-timetable/internal/log"
	"github.com/tomasr8/new-timetable/internal/model"
	"github.com/tomasr8/new-timetable/internal/timetable"
)

// LoadFunc produces the entries of the configured seed source. changed is
// false when the source reports it has not changed since the last call.
type LoadFunc func(ctx context.Context) (entries []model.Entry, changed bool, err error)

// Server exposes the board over a small JSON API.
type Server struct {
	cfg   *config.Config
	board *timetable.Board
	load  LoadFunc
	mux   *http.ServeMux

	// reloadMu serializes reloads; gestures are serialized by the board.
	reloadMu sync.Mutex
}

// NewServer constructs a Server. load may be nil, in which case reloads
// are rejected.
func NewServer(cfg *config.Config, board *timetable.Board, load LoadFunc) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:   cfg,
		board: board,
		load:  load,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestLogger(h)
}

func (s *Server) basicAuthEnabled() bool {
	return s.cfg.BasicAuth != nil && s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Timetable", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/entries", s.handleEntries)
	s.mux.HandleFunc("POST /api/entries/{id}/resize", s.handleResize)
	s.mux.HandleFunc("POST /api/entries/{id}/move", s.handleMove)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
}

// StartRefresh schedules Refresh on the cron spec. The returned stop
// function waits for a running refresh to finish.
func (s *Server) StartRefresh(ctx context.Context, spec string) (stop func(), err error) {
	if spec == "" {
		return func() {}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("refresh scheduled", "spec", spec)
	return func() { <-c.Stop().Done() }, nil
}

// Refresh re-imports the seed source and replaces the board when the source
// changed. It reports whether the board was replaced.
func (s *Server) Refresh(ctx context.Context) (bool, error) {
	return s.reload(ctx, false)
}

func (s *Server) reload(ctx context.Context, force bool) (bool, error) {
	if s.load == nil {
		return false, errors.New("web: no seed source configured")
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	entries, changed, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if !changed && !force {
		appLog.Debug("seed unchanged; keeping board")
		return false, nil
	}

	current, _ := s.board.Current()
	next, err := timetable.New(entries, current.Options())
	if err != nil {
		return false, err
	}
	s.board.Replace(next)
	appLog.Info("board reloaded", "entries", model.Count(entries), "forced", force)
	return true, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleEntries(w http.ResponseWriter, _ *http.Request) {
	snap, version := s.board.Current()
	writeJSON(w, http.StatusOK, s.snapshotResponse(snap, version))
}

type resizeRequest struct {
	Duration *int `json:"duration"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req resizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Duration == nil {
		writeError(w, http.StatusBadRequest, "duration is required")
		return
	}

	s.apply(w, timetable.ResizeOp(id, *req.Duration), "resize", id)
}

type moveRequest struct {
	Target       int     `json:"target"`
	DeltaMinutes int     `json:"delta_minutes"`
	Fraction     float64 `json:"fraction"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	drop := timetable.Drop{
		EntryID:      id,
		Target:       req.Target,
		DeltaMinutes: timetable.SnapMinutes(req.DeltaMinutes, s.cfg.SnapMinutes),
		Fraction:     req.Fraction,
	}
	s.apply(w, timetable.MoveOp(drop), "move", id)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.reload(r.Context(), true); err != nil {
		appLog.Error("reload failed", err)
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	snap, version := s.board.Current()
	writeJSON(w, http.StatusOK, s.snapshotResponse(snap, version))
}

func (s *Server) apply(w http.ResponseWriter, op timetable.Op, gesture string, id int) {
	snap, version, err := s.board.Apply(op)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			appLog.Error("gesture failed", err, "gesture", gesture, "id", id)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.snapshotResponse(snap, version))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, timetable.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, timetable.ErrTooShort),
		errors.Is(err, timetable.ErrOutsideContainer),
		errors.Is(err, timetable.ErrContainerTooShort),
		errors.Is(err, timetable.ErrNotMovable),
		errors.Is(err, timetable.ErrUnknownTarget):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func entryID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// snapshotResponse is the JSON shape of the board.
type snapshotResponse struct {
	Version         uint64     `json:"version"`
	PixelsPerMinute int        `json:"pixels_per_minute"`
	SnapMinutes     int        `json:"snap_minutes"`
	Entries         []entryDTO `json:"entries"`
}

// entryDTO is a JSON-friendly view of an entry and its geometry.
type entryDTO struct {
	Kind     model.Kind `json:"kind"`
	ID       int        `json:"id"`
	Title    string     `json:"title"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	Duration int        `json:"duration"`
	ParentID int        `json:"parent_id,omitempty"`

	Column    int     `json:"column"`
	MaxColumn int     `json:"max_column"`
	Width     float64 `json:"width"`
	X         float64 `json:"x"`
	Y         int     `json:"y"`

	Children []entryDTO `json:"children,omitempty"`
}

func (s *Server) snapshotResponse(snap timetable.Snapshot, version uint64) snapshotResponse {
	entries := snap.Entries()
	resp := snapshotResponse{
		Version:         version,
		PixelsPerMinute: snap.Options().Layout.MinutesToPixels(1),
		SnapMinutes:     s.cfg.SnapMinutes,
		Entries:         make([]entryDTO, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toDTO(e))
	}
	return resp
}

func toDTO(e model.Entry) entryDTO {
	b := e.Base()
	dto := entryDTO{
		Kind:      e.Kind(),
		ID:        b.ID,
		Title:     b.Title,
		Start:     b.Start,
		End:       b.End(),
		Duration:  b.Duration,
		ParentID:  b.ParentID,
		Column:    b.Column,
		MaxColumn: b.MaxColumn,
		Width:     b.Width,
		X:         b.X,
		Y:         b.Y,
	}
	if c, ok := e.(model.Container); ok {
		for _, ch := range c.Children() {
			dto.Children = append(dto.Children, toDTO(ch))
		}
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

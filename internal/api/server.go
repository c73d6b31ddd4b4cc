// Package api exposes the current replacement snapshot over a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/replacementbot/internal/schedule"
	"github.com/user/replacementbot/internal/storage"
	"github.com/user/replacementbot/pkg/logger"
)

// PairView is one aggregated pair as served by the API.
type PairView struct {
	Number int             `json:"number"`
	Group  string          `json:"group,omitempty"`
	Record schedule.Record `json:"record"`
}

// PairsResponse is the body of the per-group and per-teacher endpoints.
type PairsResponse struct {
	Date    *string    `json:"date"`
	RawDate *string    `json:"raw_date"`
	Group   string     `json:"group,omitempty"`
	Teacher string     `json:"teacher,omitempty"`
	Pairs   []PairView `json:"pairs"`
}

type listResponse struct {
	Date  *string  `json:"date"`
	Items []string `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AnnouncementView is the latest ledger entry as served by the API.
type AnnouncementView struct {
	Date       string    `json:"date"`
	RawDate    *string   `json:"raw_date"`
	Delivered  int       `json:"delivered"`
	Pruned     int       `json:"pruned"`
	NotifiedAt time.Time `json:"notified_at"`
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	SnapshotDate  *string           `json:"snapshot_date"`
	Subscribers   int               `json:"subscribers"`
	LastAnnounced *AnnouncementView `json:"last_announced"`
}

// Registry is the read side of the subscriber registry and notification ledger.
type Registry interface {
	Count(ctx context.Context) (int, error)
	LastNotification(ctx context.Context) (*storage.Notification, error)
}

// Handler serves snapshot reads.
type Handler struct {
	snapshots storage.SnapshotLoader
	registry  Registry
}

// NewHandler creates a handler reading from the given loader and registry.
func NewHandler(snapshots storage.SnapshotLoader, registry Registry) *Handler {
	return &Handler{snapshots: snapshots, registry: registry}
}

// Router builds the chi router with the standard middleware stack.
func (h *Handler) Router(timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.getStatus)
		r.Get("/snapshot", h.getSnapshot)
		r.Get("/groups", h.listGroups)
		r.Get("/groups/{group}/pairs", h.groupPairs)
		r.Get("/teachers", h.listTeachers)
		r.Get("/teachers/{name}/pairs", h.teacherPairs)
	})

	return r
}

// getStatus reports the subscriber count, the last announced date and the
// date of the stored snapshot. It works before any snapshot exists.
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.registry.Count(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count subscribers")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registry unavailable"})
		return
	}
	last, err := h.registry.LastNotification(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read notification ledger")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registry unavailable"})
		return
	}

	resp := StatusResponse{Subscribers: count}
	if last != nil {
		resp.LastAnnounced = &AnnouncementView{
			Date:       last.ScheduleDate,
			RawDate:    last.RawDate,
			Delivered:  last.Delivered,
			Pruned:     last.Pruned,
			NotifiedAt: last.NotifiedAt,
		}
	}
	if snap, err := h.snapshots.Load(); err == nil && snap != nil {
		resp.SnapshotDate = snap.Date
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Date: snap.Date, Items: nonNil(schedule.GroupIDs(snap))})
}

func (h *Handler) listTeachers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Date: snap.Date, Items: nonNil(schedule.Teachers(snap))})
}

func (h *Handler) groupPairs(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w)
	if !ok {
		return
	}
	group := param(r, "group")
	pairs, found := schedule.GroupPairs(snap, group)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown group"})
		return
	}
	writeJSON(w, http.StatusOK, PairsResponse{
		Date:    snap.Date,
		RawDate: snap.RawDate,
		Group:   group,
		Pairs:   views(pairs, false),
	})
}

func (h *Handler) teacherPairs(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w)
	if !ok {
		return
	}
	name := param(r, "name")
	pairs := schedule.TeacherView(snap, name)
	if len(pairs) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown teacher"})
		return
	}
	writeJSON(w, http.StatusOK, PairsResponse{
		Date:    snap.Date,
		RawDate: snap.RawDate,
		Teacher: name,
		Pairs:   views(pairs, true),
	})
}

// load writes 503 and returns false when no snapshot can be served.
func (h *Handler) load(w http.ResponseWriter) (*schedule.Snapshot, bool) {
	snap, err := h.snapshots.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read snapshot for API")
	}
	if err != nil || snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no replacement data available"})
		return nil, false
	}
	return snap, true
}

func views(pairs schedule.Pairs, withGroup bool) []PairView {
	out := make([]PairView, 0, len(pairs))
	for _, p := range pairs.Ordered() {
		v := PairView{Number: p.Number, Record: p.Source}
		if withGroup {
			v.Group = p.Group
		}
		out = append(out, v)
	}
	return out
}

// param returns a path parameter. chi matches on the decoded path, so the
// value is used as is.
func param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to write API response")
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desertthunder/scrobblex/internal/formatter"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
	"github.com/desertthunder/scrobblex/internal/tasks"
)

// EventLister reads scrobble events by criteria.
type EventLister interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.ScrobbleEvent, error)
}

// ErrorLister reads scrobble error records by criteria.
type ErrorLister interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.ScrobbleError, error)
}

// Engine is the subset of [tasks.Engine] the operator surface drives.
type Engine interface {
	RunSync(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncReport, error)
	ClearQuarantine(ctx context.Context, seriesID string) (int64, error)
}

// Pinger reports storage health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds what the operator handlers read from and act on.
type Deps struct {
	Events EventLister
	Errors ErrorLister
	Engine Engine
	DB     Pinger
	Logger *log.Logger
}

// NewRouter builds the operator router with logging and recovery middleware.
func NewRouter(deps Deps) *BasicRouter {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}

	r := NewBasicRouter()
	r.Use(Recoverer(deps.Logger), RequestLogger(deps.Logger))

	r.Handle(http.MethodGet, "/healthz", &HealthHandler{db: deps.DB})
	r.Handle(http.MethodGet, "/metrics", promhttp.Handler())
	r.Handle(http.MethodGet, "/api/scrobble/events", &EventsHandler{events: deps.Events, logger: deps.Logger})
	r.Handler(&ErrorsHandler{errors: deps.Errors, engine: deps.Engine, logger: deps.Logger})
	r.Handle(http.MethodPost, "/api/scrobble/sync", &SyncHandler{engine: deps.Engine, logger: deps.Logger})

	deps.Logger.Debug("operator routes registered", "routes", r.Routes())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthHandler answers liveness probes. It fails when the database does not answer a ping.
type HealthHandler struct {
	db Pinger
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EventsHandler lists scrobble events.
//
// Query parameters: user_id, series_id, type, status (pending, processed, errored) and limit.
type EventsHandler struct {
	events EventLister
	logger *log.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{
		"user_id":   q.Get("user_id"),
		"series_id": q.Get("series_id"),
	}

	if t := q.Get("type"); t != "" {
		eventType, err := models.ParseEventType(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		criteria["type"] = eventType
	}

	switch strings.ToLower(q.Get("status")) {
	case "":
	case "pending":
		criteria["pending"] = true
	case "processed":
		criteria["processed"] = true
	case "errored":
		criteria["errored"] = true
	default:
		writeError(w, http.StatusBadRequest, "status must be pending, processed or errored")
		return
	}

	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		criteria["limit"] = limit
	}

	events, err := h.events.List(r.Context(), criteria)
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, formatter.NewEventViews(events))
}

// ErrorsHandler lists scrobble error records and clears them per series.
type ErrorsHandler struct {
	errors ErrorLister
	engine Engine
	logger *log.Logger
}

func (h *ErrorsHandler) Routes() []string {
	return []string{"/api/scrobble/errors"}
}

func (h *ErrorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodDelete:
		h.clear(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ErrorsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{
		"series_id": q.Get("series_id"),
		"user_id":   q.Get("user_id"),
		"kind":      q.Get("kind"),
	}

	records, err := h.errors.List(r.Context(), criteria)
	if err != nil {
		h.logger.Error("failed to list scrobble errors", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scrobble errors")
		return
	}

	writeJSON(w, http.StatusOK, formatter.NewErrorViews(records))
}

func (h *ErrorsHandler) clear(w http.ResponseWriter, r *http.Request) {
	seriesID := strings.TrimSpace(r.URL.Query().Get("series_id"))
	if seriesID == "" {
		writeError(w, http.StatusBadRequest, "series_id is required")
		return
	}

	n, err := h.engine.ClearQuarantine(r.Context(), seriesID)
	if err != nil {
		h.logger.Error("failed to clear scrobble errors", "series_id", seriesID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear scrobble errors")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"seriesId": seriesID, "removed": n})
}

// SyncHandler triggers a sync run and returns its report.
type SyncHandler struct {
	engine Engine
	logger *log.Logger
}

func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunSync(r.Context(), nil)
	switch {
	case errors.Is(err, shared.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error("sync run failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "report": report})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

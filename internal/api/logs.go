package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
)

// EventReader serves the read side of the event store.
type EventReader interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	ListEvents(ctx context.Context, f domain.EventFilter, page, perPage int) (*domain.EventPage, error)
	FindEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	GetTrafficMetrics(ctx context.Context, f domain.EventFilter) (*domain.TrafficMetrics, error)
}

type LogsHandler struct {
	store  EventReader
	logger *slog.Logger
}

func NewLogsHandler(s EventReader, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{store: s, logger: logger}
}

type logsResponse struct {
	Warning        string             `json:"warning,omitempty"`
	Details        string             `json:"details,omitempty"`
	Logs           []domain.Event     `json:"logs"`
	TotalLogs      int                `json:"total_logs"`
	CurrentPage    int                `json:"current_page"`
	PerPage        int                `json:"per_page"`
	TotalPages     int                `json:"total_pages"`
	HasNext        bool               `json:"has_next"`
	HasPrev        bool               `json:"has_prev"`
	FiltersApplied map[string]*string `json:"filters_applied"`
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	p, err := parsePagination(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, applied, err := parseFilter(q, logFilterKeys)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.store.ListEvents(r.Context(), filter, p.Page, p.PerPage)
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, logsResponse{
			Warning:        "Logs could not be retrieved. Database may be unavailable or not yet migrated.",
			Details:        err.Error(),
			Logs:           []domain.Event{},
			CurrentPage:    p.Page,
			PerPage:        p.PerPage,
			FiltersApplied: applied,
		})
		return
	}

	logs := page.Events
	if logs == nil {
		logs = []domain.Event{}
	}

	respondJSON(w, http.StatusOK, logsResponse{
		Logs:           logs,
		TotalLogs:      page.Total,
		CurrentPage:    page.Page,
		PerPage:        page.PerPage,
		TotalPages:     page.TotalPages(),
		HasNext:        page.HasNext(),
		HasPrev:        page.HasPrev(),
		FiltersApplied: applied,
	})
}

func (h *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get event", "event_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}

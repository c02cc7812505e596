package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/traffic-tracker/internal/domain"
)

// TrafficHandler serves aggregated click counts.
type TrafficHandler struct {
	store  EventReader
	logger *slog.Logger
}

func NewTrafficHandler(s EventReader, logger *slog.Logger) *TrafficHandler {
	return &TrafficHandler{store: s, logger: logger}
}

type trafficResponse struct {
	Warning string `json:"warning,omitempty"`
	Details string `json:"details,omitempty"`
	domain.TrafficMetrics
	FiltersApplied map[string]*string `json:"filters_applied"`
}

func (h *TrafficHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	filter, applied, err := parseFilter(r.URL.Query(), aggregateFilterKeys)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.store.GetTrafficMetrics(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to aggregate metrics", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, trafficResponse{
			Warning:        "Metrics could not be retrieved. Database may be unavailable or not yet migrated.",
			Details:        err.Error(),
			FiltersApplied: applied,
		})
		return
	}

	respondJSON(w, http.StatusOK, trafficResponse{
		TrafficMetrics: *m,
		FiltersApplied: applied,
	})
}

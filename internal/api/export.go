package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/Priya8975/traffic-tracker/internal/export"
)

type ExportHandler struct {
	store  EventReader
	logger *slog.Logger
}

func NewExportHandler(s EventReader, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{store: s, logger: logger}
}

type exportFormat struct {
	contentType string
	filename    string
	write       func(io.Writer, []domain.Event) error
}

var exportFormats = map[string]exportFormat{
	"csv": {contentType: "text/csv", filename: "exported_events.csv", write: export.WriteCSV},
	"pdf": {contentType: "application/pdf", filename: "exported_events.pdf", write: export.WritePDF},
}

func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	name := strings.ToLower(q.Get("format"))
	if name == "" {
		name = "csv"
	}
	format, ok := exportFormats[name]
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid export format. Use 'csv' or 'pdf'.")
		return
	}

	filter, _, err := parseFilter(q, aggregateFilterKeys)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.store.FindEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query events for export", "format", name, "error", err)
		respondJSON(w, http.StatusServiceUnavailable, degradedBody{
			Warning: "Data export failed. Database may be unavailable or not yet migrated.",
			Details: err.Error(),
		})
		return
	}
	if len(events) == 0 {
		respondJSON(w, http.StatusOK, map[string]string{"message": "No data to export for the given filters."})
		return
	}

	var buf bytes.Buffer
	if err := format.write(&buf, events); err != nil {
		h.logger.Error("failed to render export", "format", name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to render export")
		return
	}

	w.Header().Set("Content-Type", format.contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

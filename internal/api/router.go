package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/traffic-tracker/internal/fraud"
	"github.com/Priya8975/traffic-tracker/internal/metrics"
	ws "github.com/Priya8975/traffic-tracker/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// EventStore is the full event store the router serves from.
type EventStore interface {
	EventWriter
	EventReader
	Pinger
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Store     EventStore
	Geo       GeoLookup
	Validator *fraud.Validator
	Hub       *ws.Hub
	// Exclusions is nil when the ads exclusion list is disabled.
	Exclusions        ExclusionEnqueuer
	ExclusionListName string
	// Redis is nil when no Redis is configured.
	Redis  Pinger
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	// CORS for dashboard
	r.Use(corsMiddleware)
	r.Use(middleware.Heartbeat("/ping"))

	var publisher Publisher
	var clients func() int
	if d.Hub != nil {
		publisher = d.Hub
		clients = d.Hub.ClientCount
		r.Get("/ws/tracking", d.Hub.HandleWebSocket)
	}

	eventHandler := NewEventHandler(d.Store, d.Geo, d.Validator, publisher, d.Exclusions, d.ExclusionListName, d.Logger)
	logsHandler := NewLogsHandler(d.Store, d.Logger)
	trafficHandler := NewTrafficHandler(d.Store, d.Logger)
	exportHandler := NewExportHandler(d.Store, d.Logger)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Store, d.Redis, clients))
		r.Post("/event", eventHandler.Create)
		r.Get("/logs", logsHandler.List)
		r.Get("/logs/{id}", logsHandler.Get)
		r.Get("/metrics", trafficHandler.Metrics)
		r.Get("/export", exportHandler.Export)
	})

	return r
}

// corsMiddleware adds CORS headers for the dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

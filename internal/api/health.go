package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	WebsocketClients int               `json:"websocket_clients"`
}

// HealthHandler returns the health check handler. redis may be nil when no
// Redis is configured; clients may be nil when the live channel is off.
func HealthHandler(postgres, redis Pinger, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{
			Status:       "healthy",
			Version:      "1.0.0",
			Dependencies: map[string]string{},
		}
		status := http.StatusOK

		resp.Dependencies["postgres"] = pingStatus(ctx, postgres)
		if resp.Dependencies["postgres"] != "up" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		if redis == nil {
			resp.Dependencies["redis"] = "disabled"
		} else {
			resp.Dependencies["redis"] = pingStatus(ctx, redis)
			if resp.Dependencies["redis"] != "up" {
				resp.Status = "degraded"
			}
		}

		if clients != nil {
			resp.WebsocketClients = clients()
		}

		respondJSON(w, status, resp)
	}
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "down"
	}
	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "up"
}

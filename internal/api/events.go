package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/Priya8975/traffic-tracker/internal/engine"
	"github.com/Priya8975/traffic-tracker/internal/fraud"
	"github.com/Priya8975/traffic-tracker/internal/metrics"
)

const (
	maxBodyBytes   = 64 << 10
	enqueueTimeout = 5 * time.Second
)

// EventWriter persists newly ingested events.
type EventWriter interface {
	CreateEvent(ctx context.Context, e *domain.Event) (*domain.Event, error)
}

// GeoLookup resolves an IP address. It never fails.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) domain.GeoData
}

// Publisher pushes stored events to live subscribers without blocking.
type Publisher interface {
	PublishEvent(event domain.Event)
}

// ExclusionEnqueuer schedules an IP for the ads exclusion list.
type ExclusionEnqueuer interface {
	Enqueue(ctx context.Context, eventID int64, ip, campaignID, listName string) (*engine.ExclusionJob, error)
}

type EventHandler struct {
	store      EventWriter
	geo        GeoLookup
	validator  *fraud.Validator
	publisher  Publisher
	exclusions ExclusionEnqueuer
	listName   string
	logger     *slog.Logger
}

// NewEventHandler wires the ingestion endpoint. exclusions may be nil to
// disable the exclusion list.
func NewEventHandler(s EventWriter, geo GeoLookup, v *fraud.Validator, pub Publisher, exclusions ExclusionEnqueuer, listName string, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		store:      s,
		geo:        geo,
		validator:  v,
		publisher:  pub,
		exclusions: exclusions,
		listName:   listName,
		logger:     logger,
	}
}

type createEventRequest struct {
	URLAccessed           *string `json:"url_accessed" validate:"omitempty,max=2048"`
	RefererURL            *string `json:"referer_url" validate:"omitempty,max=2048"`
	Channel               *string `json:"channel" validate:"omitempty,max=100"`
	DeviceType            *string `json:"device_type" validate:"omitempty,max=50"`
	CampaignCountryTarget string  `json:"campaign_country_target" validate:"omitempty,max=100"`
	GoogleCampaignID      string  `json:"google_campaign_id" validate:"omitempty,max=64"`
}

type createEventResponse struct {
	Message string  `json:"message"`
	EventID int64   `json:"event_id"`
	IsValid bool    `json:"is_valid"`
	Reason  *string `json:"reason"`
}

type createEventFailure struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		respondError(w, http.StatusBadRequest, "No data provided")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(fields) == 0 {
		respondError(w, http.StatusBadRequest, "No data provided")
		return
	}

	var req createEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	ctx := r.Context()
	ip := clientIP(r)
	userAgent := r.Header.Get("User-Agent")
	referrer := r.Header.Get("Referer")

	event := &domain.Event{
		IPAddress:   ip,
		UserAgent:   domain.StringPtr(userAgent),
		URLAccessed: orDefault(req.URLAccessed, referrer),
		RefererURL:  orDefault(req.RefererURL, referrer),
		Channel:     req.Channel,
		DeviceType:  req.DeviceType,
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err == nil {
		event.RawRequest = domain.StringPtr(compact.String())
	}

	geo := h.geo.Lookup(ctx, ip)
	event.ApplyGeo(geo)

	// Stamp after enrichment so the stored time and the frequency window
	// share one clock reading.
	event.Timestamp = time.Now().UTC()

	verdict := h.validator.Check(ctx, fraud.Click{
		IP:        ip,
		UserAgent: userAgent,
		Fields: map[string]string{
			"url_accessed": deref(event.URLAccessed),
			"referer_url":  deref(event.RefererURL),
			"channel":      deref(event.Channel),
			"device_type":  deref(event.DeviceType),
			"country":      geo.CountryName(),
		},
		CampaignCountry: req.CampaignCountryTarget,
		At:              event.Timestamp,
	})
	event.IsValidClick = verdict.Valid
	event.InvalidReason = verdict.Reason()

	created, err := h.store.CreateEvent(ctx, event)
	if err != nil {
		h.logger.Error("failed to record event", "ip", ip, "error", err)
		respondJSON(w, http.StatusInternalServerError, createEventFailure{
			Error:   "Failed to record event",
			Details: err.Error(),
		})
		return
	}
	metrics.IncEventIngested(created.IsValidClick)

	if h.publisher != nil {
		h.publisher.PublishEvent(*created)
	}
	if !created.IsValidClick {
		h.scheduleExclusion(ctx, created, req.GoogleCampaignID)
	}

	respondJSON(w, http.StatusCreated, createEventResponse{
		Message: "Event recorded successfully",
		EventID: created.ID,
		IsValid: created.IsValidClick,
		Reason:  created.InvalidReason,
	})
}

// scheduleExclusion enqueues the click's IP in the background. Failures are
// logged and never reach the client.
func (h *EventHandler) scheduleExclusion(ctx context.Context, e *domain.Event, campaignID string) {
	if h.exclusions == nil || campaignID == "" || fraud.IsLocalIP(e.IPAddress) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	go func() {
		defer cancel()
		job, err := h.exclusions.Enqueue(ctx, e.ID, e.IPAddress, campaignID, h.listName)
		if err != nil {
			h.logger.Error("failed to enqueue ip exclusion",
				"event_id", e.ID,
				"ip", e.IPAddress,
				"campaign_id", campaignID,
				"error", err,
			)
			return
		}
		metrics.IncExclusionJob("enqueued")
		h.logger.Info("ip exclusion queued",
			"job_id", job.ID,
			"event_id", e.ID,
			"ip", e.IPAddress,
			"campaign_id", campaignID,
		)
	}()
}

// clientIP returns the first X-Forwarded-For hop when it parses as an IP,
// or the connection's remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func orDefault(v *string, fallback string) *string {
	if v != nil {
		return v
	}
	return domain.StringPtr(fallback)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/Priya8975/traffic-tracker/internal/fraud"
	"github.com/Priya8975/traffic-tracker/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultAPIURL  = "https://ipapi.co/%s/json/"
	DefaultTimeout = 5 * time.Second
	DefaultTTL     = 24 * time.Hour

	SentinelLocal   = "Local"
	SentinelUnknown = "Unknown"
)

// Config configures the online lookup and its cache.
type Config struct {
	// APIURL is a URL template with %s for the IP address.
	APIURL   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Enricher resolves IP addresses to a location. Lookups never fail: local
// addresses get the Local sentinel set and any lookup error gets Unknown.
type Enricher struct {
	cfg    Config
	client *http.Client
	cache  *redis.Client
	logger *slog.Logger
}

// NewEnricher creates an enricher. cache may be nil to disable caching.
func NewEnricher(cfg Config, cache *redis.Client, logger *slog.Logger) *Enricher {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultTTL
	}
	return &Enricher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger,
	}
}

// LocalData is returned for empty and loopback addresses.
func LocalData() domain.GeoData {
	return domain.GeoData{
		Country: strPtr(SentinelLocal),
		City:    strPtr(SentinelLocal),
		Region:  strPtr(SentinelLocal),
		ISP:     strPtr("Local Network"),
	}
}

// UnknownData is returned when the lookup fails.
func UnknownData() domain.GeoData {
	return domain.GeoData{
		Country: strPtr(SentinelUnknown),
		City:    strPtr(SentinelUnknown),
		Region:  strPtr(SentinelUnknown),
		ISP:     strPtr(SentinelUnknown),
	}
}

// Lookup resolves ip, consulting the cache first.
func (e *Enricher) Lookup(ctx context.Context, ip string) domain.GeoData {
	if fraud.IsLocalIP(ip) {
		metrics.IncGeoLookup("local")
		return LocalData()
	}
	if net.ParseIP(ip) == nil {
		e.logger.Warn("not an ip address, skipping geolocation", "ip", ip)
		metrics.IncGeoLookup("error")
		return UnknownData()
	}

	if data, ok := e.fromCache(ctx, ip); ok {
		metrics.IncGeoLookup("cache")
		return data
	}

	data, err := e.lookupOnline(ctx, ip)
	if err != nil {
		e.logger.Warn("geolocation lookup failed", "ip", ip, "error", err)
		metrics.IncGeoLookup("error")
		return UnknownData()
	}

	metrics.IncGeoLookup("api")
	e.toCache(ctx, ip, data)
	return data
}

// apiResponse covers the ipapi.co fields we use.
type apiResponse struct {
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
	CountryName *string  `json:"country_name"`
	City        *string  `json:"city"`
	Region      *string  `json:"region"`
	Org         *string  `json:"org"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

func (e *Enricher) lookupOnline(ctx context.Context, ip string) (domain.GeoData, error) {
	endpoint := e.cfg.APIURL
	segment := url.PathEscape(ip)
	if strings.Contains(endpoint, "%s") {
		endpoint = fmt.Sprintf(endpoint, segment)
	} else {
		endpoint = strings.TrimRight(endpoint, "/") + "/" + segment
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GeoData{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.GeoData{}, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoData{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return domain.GeoData{}, fmt.Errorf("reading response: %w", err)
	}

	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return domain.GeoData{}, fmt.Errorf("decoding response: %w", err)
	}
	if r.Error {
		return domain.GeoData{}, fmt.Errorf("api error: %s", r.Reason)
	}

	return domain.GeoData{
		Country:   r.CountryName,
		City:      r.City,
		Region:    r.Region,
		ISP:       r.Org,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

func cacheKey(ip string) string {
	return fmt.Sprintf("geo:%s", ip)
}

func (e *Enricher) fromCache(ctx context.Context, ip string) (domain.GeoData, bool) {
	if e.cache == nil {
		return domain.GeoData{}, false
	}

	raw, err := e.cache.Get(ctx, cacheKey(ip)).Bytes()
	if err != nil {
		if err != redis.Nil {
			e.logger.Debug("geo cache read failed", "ip", ip, "error", err)
		}
		return domain.GeoData{}, false
	}

	var data domain.GeoData
	if err := json.Unmarshal(raw, &data); err != nil {
		e.logger.Debug("geo cache entry corrupt", "ip", ip, "error", err)
		return domain.GeoData{}, false
	}
	return data, true
}

func (e *Enricher) toCache(ctx context.Context, ip string, data domain.GeoData) {
	if e.cache == nil {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, cacheKey(ip), raw, e.cfg.CacheTTL).Err(); err != nil {
		e.logger.Debug("geo cache write failed", "ip", ip, "error", err)
	}
}

func strPtr(s string) *string {
	return &s
}

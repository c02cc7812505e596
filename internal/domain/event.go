package domain

import (
	"time"
)

// Event is one recorded click or visit, with enrichment and validity verdict attached.
type Event struct {
	ID            int64     `json:"id"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     *string   `json:"user_agent"`
	Timestamp     time.Time `json:"timestamp"`
	URLAccessed   *string   `json:"url_accessed"`
	RefererURL    *string   `json:"referer_url"`
	Country       *string   `json:"country"`
	City          *string   `json:"city"`
	Region        *string   `json:"region"`
	ISP           *string   `json:"isp"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	Channel       *string   `json:"channel"`
	DeviceType    *string   `json:"device_type"`
	IsValidClick  bool      `json:"is_valid_click"`
	InvalidReason *string   `json:"invalid_reason"`
	RawRequest    *string   `json:"-"`
}

// ApplyGeo copies the enrichment fields onto the event.
func (e *Event) ApplyGeo(g GeoData) {
	e.Country = g.Country
	e.City = g.City
	e.Region = g.Region
	e.ISP = g.ISP
	e.Latitude = g.Latitude
	e.Longitude = g.Longitude
}

// GeoData is the result of resolving an IP address to a location.
type GeoData struct {
	Country   *string  `json:"country"`
	City      *string  `json:"city"`
	Region    *string  `json:"region"`
	ISP       *string  `json:"isp"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CountryName returns the resolved country or "" when none is known.
func (g GeoData) CountryName() string {
	if g.Country == nil {
		return ""
	}
	return *g.Country
}

// EventPage is one page of a filtered event listing.
type EventPage struct {
	Events  []Event
	Total   int
	Page    int
	PerPage int
}

// TotalPages returns the number of pages needed for Total at PerPage.
func (p EventPage) TotalPages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p EventPage) HasNext() bool {
	return p.Page < p.TotalPages()
}

func (p EventPage) HasPrev() bool {
	return p.Page > 1
}

// TrafficMetrics holds aggregated counts over a filtered event set.
type TrafficMetrics struct {
	TotalEvents   int `json:"total_events"`
	ValidClicks   int `json:"valid_clicks"`
	InvalidClicks int `json:"invalid_clicks"`
	UniqueIPs     int `json:"unique_ips"`
}

// StringPtr returns nil for an empty string so it is stored as NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package export renders event listings as downloadable CSV and PDF files.
package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
)

// CSVColumns are the serialized event keys minus the identifier. The raw
// request payload is never serialized.
var CSVColumns = []string{
	"ip_address", "user_agent", "timestamp", "url_accessed", "referer_url",
	"country", "city", "region", "isp", "latitude", "longitude",
	"channel", "device_type", "is_valid_click", "invalid_reason",
}

// PDFColumns additionally drop the geo detail columns so the table fits the page.
var PDFColumns = []string{
	"ip_address", "user_agent", "timestamp", "url_accessed", "referer_url",
	"country", "channel", "device_type", "is_valid_click", "invalid_reason",
}

// field returns the text value of one column for e.
func field(e domain.Event, column string) string {
	switch column {
	case "id":
		return strconv.FormatInt(e.ID, 10)
	case "ip_address":
		return e.IPAddress
	case "user_agent":
		return deref(e.UserAgent)
	case "timestamp":
		return e.Timestamp.UTC().Format(time.RFC3339Nano)
	case "url_accessed":
		return deref(e.URLAccessed)
	case "referer_url":
		return deref(e.RefererURL)
	case "country":
		return deref(e.Country)
	case "city":
		return deref(e.City)
	case "region":
		return deref(e.Region)
	case "isp":
		return deref(e.ISP)
	case "latitude":
		return derefFloat(e.Latitude)
	case "longitude":
		return derefFloat(e.Longitude)
	case "channel":
		return deref(e.Channel)
	case "device_type":
		return deref(e.DeviceType)
	case "is_valid_click":
		return strconv.FormatBool(e.IsValidClick)
	case "invalid_reason":
		return deref(e.InvalidReason)
	}
	return ""
}

// headerTitle turns "ip_address" into "Ip Address".
func headerTitle(column string) string {
	words := strings.Split(column, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

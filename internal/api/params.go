package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// maxPage keeps (page-1)*per_page well inside the OFFSET range.
	maxPage = 1000000
)

// inputError is a client mistake in query parameters, reported with 400.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

// Filter parameters accepted by each read endpoint, in the order they are
// echoed back under filters_applied.
var (
	logFilterKeys = []string{
		"start_date", "end_date", "ip_address", "user_agent_contains",
		"url_accessed_contains", "country", "status", "invalid_reason_contains",
		"channel", "device_type",
	}
	aggregateFilterKeys = []string{
		"start_date", "end_date", "channel", "country", "device_type", "status",
	}
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseISOTime accepts RFC 3339 and the zone-less ISO forms; zone-less values
// are taken as UTC.
func parseISOTime(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// parseFilter reads the filter parameters named in keys. It also returns the
// raw values as given, with absent parameters as nil.
func parseFilter(q url.Values, keys []string) (domain.EventFilter, map[string]*string, error) {
	var f domain.EventFilter
	applied := make(map[string]*string, len(keys))

	for _, key := range keys {
		raw := q.Get(key)
		if raw == "" {
			applied[key] = nil
			continue
		}
		applied[key] = &raw

		switch key {
		case "start_date", "end_date":
			t, err := parseISOTime(raw)
			if err != nil {
				return f, applied, &inputError{msg: fmt.Sprintf("Invalid %s format. Use ISO format.", key)}
			}
			if key == "start_date" {
				f.StartDate = &t
			} else {
				f.EndDate = &t
			}
		case "status":
			status, err := domain.ParseStatus(raw)
			if err != nil {
				return f, applied, &inputError{msg: "Invalid status value. Use 'valid', 'invalid', or 'all'."}
			}
			f.Status = status
		case "ip_address":
			f.IPAddress = raw
		case "user_agent_contains":
			f.UserAgentContains = raw
		case "url_accessed_contains":
			f.URLAccessedContains = raw
		case "invalid_reason_contains":
			f.InvalidReasonContains = raw
		case "country":
			f.Country = raw
		case "channel":
			f.Channel = raw
		case "device_type":
			f.DeviceType = raw
		}
	}
	return f, applied, nil
}

type pagination struct {
	Page    int `validate:"min=1,max=1000000"`
	PerPage int `validate:"min=1"`
}

// parsePagination reads page and per_page, capping per_page at maxPerPage.
func parsePagination(q url.Values) (pagination, error) {
	p := pagination{Page: 1, PerPage: defaultPerPage}

	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, &inputError{msg: "Invalid page value. Use a positive integer."}
		}
		p.Page = n
	}
	if raw := strings.TrimSpace(q.Get("per_page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, &inputError{msg: "Invalid per_page value. Use a positive integer."}
		}
		p.PerPage = n
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Tag() == "max" {
			return p, &inputError{msg: fmt.Sprintf("Invalid page value. Maximum is %d.", maxPage)}
		}
		return p, &inputError{msg: "Invalid page value. Use a positive integer."}
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p, nil
}

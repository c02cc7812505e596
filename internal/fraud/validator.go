package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/metrics"
)

// Reason strings are persisted verbatim and matched by the logs endpoint's
// invalid_reason_contains filter.
const (
	ReasonGenericUserAgent = "Empty or Generic User Agent"
	reasonSuspiciousUA     = "Suspicious User Agent: contains '%s'"
	reasonHighFrequency    = "High IP Frequency: %d clicks in %ds"
	reasonGeoMismatch      = "Geolocation Mismatch: Click from %s, expected %s"
)

// RecentCounter counts stored clicks from ip with a timestamp in [since, until).
type RecentCounter interface {
	CountRecentByIP(ctx context.Context, ip string, since, until time.Time) (int, error)
}

// RecentCounterFunc adapts a plain function to RecentCounter.
type RecentCounterFunc func(ctx context.Context, ip string, since, until time.Time) (int, error)

func (f RecentCounterFunc) CountRecentByIP(ctx context.Context, ip string, since, until time.Time) (int, error) {
	return f(ctx, ip, since, until)
}

// Click is the candidate event handed to the validator.
type Click struct {
	IP        string
	UserAgent string
	// Fields carries the descriptive request fields (url_accessed, referer_url,
	// channel, device_type, country).
	Fields          map[string]string
	CampaignCountry string
	// At is the click's event time and ends the frequency window. Zero means
	// the validator's clock.
	At time.Time
}

// Verdict is the outcome of validating one click.
type Verdict struct {
	Valid   bool
	Reasons []string
}

// Reason returns the comma-joined reasons, or nil for a valid click.
func (v Verdict) Reason() *string {
	if len(v.Reasons) == 0 {
		return nil
	}
	s := JoinReasons(v.Reasons)
	return &s
}

// JoinReasons renders reasons in the form stored on the event row.
func JoinReasons(reasons []string) string {
	return strings.Join(reasons, ", ")
}

// Validator applies the click heuristics. It holds no per-request state and
// is safe for concurrent use.
//
// The frequency check reads committed rows only, so concurrent bursts from one
// IP can each observe a count below the limit and all pass.
type Validator struct {
	cfg     Config
	counter RecentCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewValidator builds a Validator. counter may be nil, in which case the
// frequency check never flags.
func NewValidator(cfg Config, counter RecentCounter, logger *slog.Logger) (*Validator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid click validation config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		cfg:     cfg.normalized(),
		counter: counter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config returns the validator's configuration.
func (v *Validator) Config() Config {
	return v.cfg
}

// Check runs the user agent check, then the IP frequency check, and the geo
// consistency check only when enabled. Reasons keep that order.
func (v *Validator) Check(ctx context.Context, c Click) Verdict {
	var reasons []string

	if bad, reason := v.IsSuspiciousUserAgent(c.UserAgent); bad {
		metrics.IncFlagged("user_agent")
		reasons = append(reasons, reason)
	}
	at := c.At
	if at.IsZero() {
		at = v.now()
	}
	if bad, reason := v.IsHighFrequencyIP(ctx, c.IP, at); bad {
		metrics.IncFlagged("ip_frequency")
		reasons = append(reasons, reason)
	}
	if v.cfg.EnforceGeoConsistency {
		if bad, reason := v.IsInconsistentGeolocation(c.Fields["country"], c.CampaignCountry); bad {
			metrics.IncFlagged("geolocation")
			reasons = append(reasons, reason)
		}
	}

	if len(reasons) == 0 {
		return Verdict{Valid: true, Reasons: []string{}}
	}
	return Verdict{Valid: false, Reasons: reasons}
}

// IsSuspiciousUserAgent flags empty or generic user agents, and user agents
// containing one of the configured substrings.
func (v *Validator) IsSuspiciousUserAgent(userAgent string) (bool, string) {
	ua := strings.ToLower(userAgent)
	if ua == "" || slices.Contains(v.cfg.GenericUserAgents, ua) {
		return true, ReasonGenericUserAgent
	}

	for _, sub := range v.cfg.SuspiciousSubstrings {
		if sub != "" && strings.Contains(ua, sub) {
			return true, fmt.Sprintf(reasonSuspiciousUA, sub)
		}
	}
	return false, ""
}

// IsHighFrequencyIP flags ip when at least FrequencyLimit other clicks from it
// were stored in the window ending at now. Lookup failures are logged and
// treated as not flagged.
func (v *Validator) IsHighFrequencyIP(ctx context.Context, ip string, now time.Time) (bool, string) {
	if IsLocalIP(ip) || v.counter == nil {
		return false, ""
	}

	since := now.Add(-v.cfg.FrequencyWindow)
	count, err := v.counter.CountRecentByIP(ctx, ip, since, now)
	if err != nil {
		v.logger.Warn("could not check ip frequency, skipping",
			"ip", ip,
			"error", err,
		)
		return false, ""
	}

	if count >= v.cfg.FrequencyLimit {
		return true, fmt.Sprintf(reasonHighFrequency, count+1, int(v.cfg.FrequencyWindow/time.Second))
	}
	return false, ""
}

// IsInconsistentGeolocation flags a click whose resolved country differs from
// the campaign's expected country. Unknown and Local never flag.
func (v *Validator) IsInconsistentGeolocation(country, expected string) (bool, string) {
	if country == "" || expected == "" {
		return false, ""
	}
	if country == "Unknown" || country == "Local" {
		return false, ""
	}
	if strings.EqualFold(country, expected) {
		return false, ""
	}
	return true, fmt.Sprintf(reasonGeoMismatch, country, expected)
}

// IsLocalIP reports whether ip is absent or a loopback address.
func IsLocalIP(ip string) bool {
	if ip == "" || ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

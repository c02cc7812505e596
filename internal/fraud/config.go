package fraud

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the click validation thresholds. It is built once at startup
// and never mutated afterwards.
type Config struct {
	// FrequencyLimit is the number of prior clicks from one IP inside the
	// window at which the next click is flagged.
	FrequencyLimit  int
	FrequencyWindow time.Duration

	// SuspiciousSubstrings are matched against the lower-cased user agent in
	// order; the first hit is the one reported.
	SuspiciousSubstrings []string
	GenericUserAgents    []string

	// EnforceGeoConsistency adds the campaign country check to Check.
	EnforceGeoConsistency bool
}

var defaultSuspiciousSubstrings = []string{
	"bot", "crawler", "spider", "headless", "phantomjs", "python-requests",
	"curl", "wget", "libwww-perl", "go-http-client", "java/", "apache-httpclient",
	"node-fetch", "scrapy", "selenium", "puppeteer", "playwright", "dataprovider",
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider", "yandexbot",
	"sogou", "exabot", "facebot", "ia_archiver",
}

var defaultGenericUserAgents = []string{
	"-", "", "mozilla/5.0", "generic browser",
}

// DefaultConfig returns a limit of 5 clicks per 10 seconds and the built-in
// user agent lists.
func DefaultConfig() Config {
	return Config{
		FrequencyLimit:       5,
		FrequencyWindow:      10 * time.Second,
		SuspiciousSubstrings: append([]string(nil), defaultSuspiciousSubstrings...),
		GenericUserAgents:    append([]string(nil), defaultGenericUserAgents...),
	}
}

func (c Config) validate() error {
	if c.FrequencyLimit <= 0 {
		return fmt.Errorf("frequency limit must be positive, got %d", c.FrequencyLimit)
	}
	if c.FrequencyWindow <= 0 {
		return fmt.Errorf("frequency window must be positive, got %s", c.FrequencyWindow)
	}
	return nil
}

// normalized returns a copy with lower-cased lists so later matching never
// touches the caller's slices.
func (c Config) normalized() Config {
	out := c
	out.SuspiciousSubstrings = lowerAll(c.SuspiciousSubstrings)
	out.GenericUserAgents = lowerAll(c.GenericUserAgents)
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

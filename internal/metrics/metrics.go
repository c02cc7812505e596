package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsIngested counts stored events.
	// Labels:
	// - valid: "true" or "false"
	eventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traffic",
			Subsystem: "events",
			Name:      "ingested_total",
			Help:      "Number of events stored by the ingestion endpoint.",
		},
		[]string{"valid"},
	)

	// invalidReasons counts triggered validation checks.
	// Labels:
	// - check: "user_agent", "ip_frequency" or "geolocation"
	invalidReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traffic",
			Subsystem: "validation",
			Name:      "flagged_total",
			Help:      "Number of times each click validation check flagged a click.",
		},
		[]string{"check"},
	)

	// geoLookups counts geolocation resolutions by outcome.
	// Labels:
	// - result: "local", "cache", "api" or "error"
	geoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traffic",
			Subsystem: "geo",
			Name:      "lookups_total",
			Help:      "Geolocation lookups by outcome.",
		},
		[]string{"result"},
	)

	exclusionJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traffic",
			Subsystem: "exclusion",
			Name:      "jobs_total",
			Help:      "IP exclusion jobs by outcome.",
		},
		[]string{"result"},
	)
)

// IncEventIngested increments the stored events counter.
func IncEventIngested(valid bool) {
	eventsIngested.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// IncFlagged increments the counter for a validation check that flagged a click.
func IncFlagged(check string) {
	if check == "" {
		check = "unknown"
	}
	invalidReasons.WithLabelValues(check).Inc()
}

// IncGeoLookup increments the geolocation lookup counter.
func IncGeoLookup(result string) {
	if result == "" {
		result = "unknown"
	}
	geoLookups.WithLabelValues(result).Inc()
}

// IncExclusionJob increments the exclusion job counter ("enqueued", "done",
// "retried", "deferred", "released" or "dropped").
func IncExclusionJob(result string) {
	if result == "" {
		result = "unknown"
	}
	exclusionJobs.WithLabelValues(result).Inc()
}

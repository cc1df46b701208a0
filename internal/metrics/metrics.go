package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdsresolve_http_requests_total",
			Help: "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdsresolve_http_request_duration_seconds",
			Help:    "Inbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Search metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdsresolve_searches_total",
			Help: "Field searches by outcome (ok, empty, exhausted, fatal, cancelled)",
		},
		[]string{"outcome"},
	)

	SearchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdsresolve_search_attempts_total",
			Help: "Search attempts per backend instance and outcome",
		},
		[]string{"instance", "outcome"},
	)

	SearchAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdsresolve_search_attempt_duration_seconds",
			Help:    "Duration of a single search attempt",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"instance"},
	)

	// Cache metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdsresolve_cache_lookups_total",
			Help: "Result cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	// Enrichment metrics
	EnrichmentPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdsresolve_enrichment_pages_total",
			Help: "Pages fetched for enrichment",
		},
		[]string{"field"},
	)

	// Resolution metrics
	FieldResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdsresolve_field_resolutions_total",
			Help: "Field results returned by origin",
		},
		[]string{"field", "origin"},
	)
)

// Recorder forwards component events to the package collectors.
// The zero value is ready to use.
type Recorder struct{}

func (Recorder) ObserveAttempt(instance, outcome string, elapsed time.Duration) {
	SearchAttemptsTotal.WithLabelValues(instance, outcome).Inc()
	SearchAttemptDuration.WithLabelValues(instance).Observe(elapsed.Seconds())
}

func (Recorder) ObserveSearch(outcome string) {
	SearchesTotal.WithLabelValues(outcome).Inc()
}

func (Recorder) ObserveCache(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (Recorder) ObservePages(field string, n int) {
	if n > 0 {
		EnrichmentPagesTotal.WithLabelValues(field).Add(float64(n))
	}
}

func (Recorder) ObserveResolution(field, origin string) {
	FieldResolutionsTotal.WithLabelValues(field, origin).Inc()
}

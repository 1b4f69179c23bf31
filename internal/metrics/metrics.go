package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ValidationsTotal
const (
	OutcomeValid         = "valid"
	OutcomeBlacklisted   = "blacklisted"
	OutcomeNetworkFailed = "network_failed"
	OutcomeNonHTML       = "non_html"
	OutcomeFault         = "fault"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_validations_total",
			Help: "Finished link validation runs by terminal outcome.",
		},
		[]string{"outcome"},
	)

	ValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "link_validation_duration_seconds",
			Help:    "Wall time of a link validation run.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "link_fetch_duration_seconds",
			Help:    "Duration of outbound fetches by mode.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Queue jobs handled by the worker, by result.",
		},
		[]string{"job_type", "result"},
	)

	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Jobs pushed onto the queue.",
		},
		[]string{"job_type"},
	)

	SweepLinksQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_links_queued_total",
			Help: "Pending links re-enqueued by sweeps.",
		},
	)
)

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for every route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "contextcache",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// RecallQueriesTotal counts recall requests, split by whether FTS ranking was used.
var RecallQueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "recall",
		Name:      "queries_total",
		Help:      "Total number of recall queries served.",
	},
	[]string{"used_fts"},
)

// QuotaExceededTotal counts quota rejections by event type.
var QuotaExceededTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "quota",
		Name:      "exceeded_total",
		Help:      "Total number of quota-exceeded rejections.",
	},
	[]string{"event_type"},
)

// JobsEnqueuedTotal counts jobs accepted by the dispatcher, by backend.
var JobsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Total number of jobs enqueued, by backend.",
	},
	[]string{"backend", "task"},
)

// JobsFailedTotal counts jobs that exhausted their retry budget.
var JobsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "jobs",
		Name:      "failed_total",
		Help:      "Total number of jobs that failed after exhausting retries.",
	},
	[]string{"task"},
)

// JobsDroppedTotal counts jobs dropped because the in-process queue was full.
var JobsDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "jobs",
		Name:      "dropped_total",
		Help:      "Total number of jobs dropped due to a full in-process queue.",
	},
)

// DispatcherFallbackTotal counts jobs that degraded from the Redis backend
// to the in-process fallback pool because the Redis push failed.
var DispatcherFallbackTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "jobs",
		Name:      "dispatcher_fallback_total",
		Help:      "Total number of jobs degraded to the in-process pool after a Redis backend failure.",
	},
)

// PackTruncatedTotal counts memory-pack renders that hit the byte budget.
var PackTruncatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "pack",
		Name:      "truncated_total",
		Help:      "Total number of memory pack renders truncated by the byte budget.",
	},
	[]string{"format"},
)

// RateLimitedTotal counts HTTP requests rejected by the rate limiter.
var RateLimitedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "contextcache",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
)

// All returns every ContextCache-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RecallQueriesTotal,
		QuotaExceededTotal,
		JobsEnqueuedTotal,
		JobsFailedTotal,
		JobsDroppedTotal,
		DispatcherFallbackTotal,
		PackTruncatedTotal,
		RateLimitedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP duration histogram, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}

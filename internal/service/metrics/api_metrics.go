// Package metrics exposes per-endpoint instrumentation for the zones
// API, separate from the pipeline metrics in pkg/metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zonescan",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of zones API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonescan",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by zones API endpoint",
		},
		[]string{"endpoint"},
	)

	APICacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonescan",
			Subsystem: "api",
			Name:      "cache_hits_total",
			Help:      "Response cache hits by endpoint",
		},
		[]string{"endpoint"},
	)

	APIRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonescan",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client limiter",
		},
		[]string{"endpoint"},
	)
)

// Register installs the API collectors exactly once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, APICacheHits, APIRateLimited)
	})
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the liveness resolver and the
// external status prober.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	resolutionsTotal    *prometheus.CounterVec
	batchCacheHits      prometheus.Counter
	batchCacheMisses    prometheus.Counter
	holdoverServedTotal prometheus.Counter
	upstreamErrorsTotal prometheus.Counter
	probesTotal         *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewall_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewall_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	resolutionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livewall_resolutions_total",
		Help: "Liveness resolutions by the strategy that produced the verdict",
	}, []string{"found_by"})
	batchCacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewall_batch_cache_hits_total",
		Help: "Batch responses served from the short-TTL cache",
	})
	batchCacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewall_batch_cache_misses_total",
		Help: "Batch requests that had to resolve upstream",
	})
	holdoverServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewall_holdover_served_total",
		Help: "Results served from the last-known-good cache after upstream failure",
	})
	upstreamErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewall_upstream_errors_total",
		Help: "Upstream fetch or API failures across all strategies",
	})
	probesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livewall_probes_total",
		Help: "External source probes by resulting state",
	}, []string{"state"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		resolutionsTotal,
		batchCacheHits,
		batchCacheMisses,
		holdoverServedTotal,
		upstreamErrorsTotal,
		probesTotal,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		resolutionsTotal:    resolutionsTotal,
		batchCacheHits:      batchCacheHits,
		batchCacheMisses:    batchCacheMisses,
		holdoverServedTotal: holdoverServedTotal,
		upstreamErrorsTotal: upstreamErrorsTotal,
		probesTotal:         probesTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncResolution records a resolution verdict attributed to foundBy.
func (m *Metrics) IncResolution(foundBy string) {
	m.resolutionsTotal.WithLabelValues(foundBy).Inc()
}

// IncBatchCacheHit increments the batch cache hit counter.
func (m *Metrics) IncBatchCacheHit() {
	m.batchCacheHits.Inc()
}

// IncBatchCacheMiss increments the batch cache miss counter.
func (m *Metrics) IncBatchCacheMiss() {
	m.batchCacheMisses.Inc()
}

// IncHoldoverServed increments the last-known-good fallback counter.
func (m *Metrics) IncHoldoverServed() {
	m.holdoverServedTotal.Inc()
}

// IncUpstreamError increments the upstream failure counter.
func (m *Metrics) IncUpstreamError() {
	m.upstreamErrorsTotal.Inc()
}

// IncProbe records an external probe outcome.
func (m *Metrics) IncProbe(state string) {
	m.probesTotal.WithLabelValues(state).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

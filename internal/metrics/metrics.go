// Package metrics exposes cache and fetch counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements weather.Observer. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	chunkFetches    *prometheus.CounterVec
	readingsFetched prometheus.Counter
	readingsInvalid prometheus.Counter
	cacheDays       *prometheus.CounterVec
	readingsCached  prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunkFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambient_chunk_fetch_total",
			Help: "Remote chunk requests by outcome.",
		}, []string{"outcome"}),
		readingsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambient_readings_fetched_total",
			Help: "Readings returned by the remote provider.",
		}),
		readingsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambient_readings_invalid_total",
			Help: "Fetched readings dropped for lacking a timestamp.",
		}),
		cacheDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambient_cache_days_total",
			Help: "Days looked up in the cache by state (hit or miss).",
		}, []string{"state"}),
		readingsCached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambient_readings_cached_total",
			Help: "New readings written to the cache.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chunkFetches,
		m.readingsFetched,
		m.readingsInvalid,
		m.cacheDays,
		m.readingsCached,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChunkFetched(outcome string, n int) {
	if m == nil {
		return
	}
	m.chunkFetches.WithLabelValues(outcome).Inc()
	if n > 0 {
		m.readingsFetched.Add(float64(n))
	}
}

func (m *Metrics) ReadingsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.readingsInvalid.Add(float64(n))
}

func (m *Metrics) CacheLookup(hitDays, missingDays int) {
	if m == nil {
		return
	}
	m.cacheDays.WithLabelValues("hit").Add(float64(hitDays))
	m.cacheDays.WithLabelValues("miss").Add(float64(missingDays))
}

func (m *Metrics) ReadingsCached(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.readingsCached.Add(float64(n))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

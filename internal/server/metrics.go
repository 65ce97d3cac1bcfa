package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SyncsTotal      *prometheus.CounterVec
	SyncDuration    prometheus.Histogram
	SyncedTracks    prometheus.Counter
}

// NewMetrics creates and registers the collectors, together with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotalytics_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spotalytics_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotalytics_syncs_total",
				Help: "Library syncs by outcome",
			},
			[]string{"status"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spotalytics_sync_duration_seconds",
				Help:    "Duration of successful library syncs",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		SyncedTracks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spotalytics_synced_tracks_total",
				Help: "Track rows written by syncs",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.SyncsTotal,
		m.SyncDuration,
		m.SyncedTracks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests and observes their latency, labelled by the matched route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordSync records the outcome of a sync.
func (m *Metrics) RecordSync(err error, duration time.Duration, tracks int) {
	if err != nil {
		m.SyncsTotal.WithLabelValues("error").Inc()
		return
	}
	m.SyncsTotal.WithLabelValues("ok").Inc()
	m.SyncDuration.Observe(duration.Seconds())
	m.SyncedTracks.Add(float64(tracks))
}

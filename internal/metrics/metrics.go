// Package metrics holds the Prometheus collectors shared by the scraper
// components. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Relay metrics
	RelayTotal    *prometheus.CounterVec
	RelayDuration *prometheus.HistogramVec

	// Panel metrics
	ExtractionsTotal *prometheus.CounterVec
	SnapshotsSaved   prometheus.Counter

	// Page host metrics
	PagesOpen prometheus.Gauge
	PageLoads *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates collectors registered on their own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RelayTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_relay_total",
				Help: "SCRAPE_CONTENT requests relayed to a page",
			},
			[]string{"outcome"},
		),
		RelayDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_relay_duration_seconds",
				Help:    "Time from receiving SCRAPE_CONTENT to the page's answer",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		ExtractionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_extractions_total",
				Help: "Panel submissions by extraction type and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SnapshotsSaved: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scrape_snapshots_saved_total",
				Help: "Snapshots written to the store",
			},
		),
		PagesOpen: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_pages_open",
				Help: "Pages currently served by this host",
			},
		),
		PageLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_page_loads_total",
				Help: "Page loads by outcome",
			},
			[]string{"outcome"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_http_requests_total",
				Help: "Gateway HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_http_request_duration_seconds",
				Help:    "Gateway HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveRelay records one relayed request
func (m *Metrics) ObserveRelay(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RelayTotal.WithLabelValues(outcome).Inc()
	m.RelayDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveExtraction records one panel submission
func (m *Metrics) ObserveExtraction(mode, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(mode, outcome).Inc()
}

// SnapshotSaved counts a stored snapshot
func (m *Metrics) SnapshotSaved() {
	if m == nil {
		return
	}
	m.SnapshotsSaved.Inc()
}

// ObservePageLoad records a load attempt
func (m *Metrics) ObservePageLoad(outcome string) {
	if m == nil {
		return
	}
	m.PageLoads.WithLabelValues(outcome).Inc()
}

// SetPagesOpen sets the open page count
func (m *Metrics) SetPagesOpen(n int) {
	if m == nil {
		return
	}
	m.PagesOpen.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations by route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

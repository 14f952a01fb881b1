// Package metrics exposes Prometheus metrics for playback, caching and refresh.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marquee"

// CacheStats reports cache counters at scrape time
type CacheStats func() (hits, misses, evictions int64, size int)

// Metrics holds the Prometheus collectors for the service
type Metrics struct {
	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	attempts         *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	refreshTicks     *prometheus.CounterVec
	adsShown         prometheus.Counter
	catalogReloads   *prometheus.CounterVec
	adminLoginsTotal *prometheus.CounterVec
}

// New creates and registers the service metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_attempts_total",
			Help:      "Load attempts that reached a backend, by strategy",
		}, []string{"strategy"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_transitions_total",
			Help:      "Player state transitions",
		}, []string{"from", "to"}),
		refreshTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_ticks_total",
			Help:      "Refresh scheduler ticks by outcome",
		}, []string{"outcome"}),
		adsShown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ads_shown_total",
			Help:      "Ad slots rotated into view since start",
		}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ad_catalog_reloads_total",
			Help:      "Ad catalog reloads by result",
		}, []string{"result"}),
		adminLoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_logins_total",
			Help:      "Admin login attempts by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.attempts,
		m.transitions,
		m.refreshTicks,
		m.adsShown,
		m.catalogReloads,
		m.adminLoginsTotal,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCache exposes metadata cache counters, read at scrape time
func (m *Metrics) RegisterCache(stats CacheStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "metadata_cache_hits_total", Help: "Metadata cache hits",
		}, func() float64 { h, _, _, _ := stats(); return float64(h) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "metadata_cache_misses_total", Help: "Metadata cache misses, including stale entries",
		}, func() float64 { _, mi, _, _ := stats(); return float64(mi) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "metadata_cache_evictions_total", Help: "Metadata cache capacity evictions",
		}, func() float64 { _, _, e, _ := stats(); return float64(e) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "metadata_cache_entries", Help: "Metadata cache entries physically present",
		}, func() float64 { _, _, _, s := stats(); return float64(s) }),
	)
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveTransition records a player state change. A move to loading
// counts as an attempt for strategy.
func (m *Metrics) ObserveTransition(from, to, strategy string) {
	m.transitions.WithLabelValues(from, to).Inc()
	if to == "loading" && strategy != "" {
		m.attempts.WithLabelValues(strategy).Inc()
	}
}

// ObserveTick records a refresh tick outcome: refreshed, skipped or failed
func (m *Metrics) ObserveTick(outcome string) {
	m.refreshTicks.WithLabelValues(outcome).Inc()
}

// AddAdsShown adds n rotated ad slots
func (m *Metrics) AddAdsShown(n int) {
	m.adsShown.Add(float64(n))
}

// ObserveCatalogReload records an ad catalog reload
func (m *Metrics) ObserveCatalogReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.catalogReloads.WithLabelValues(result).Inc()
}

// ObserveLogin records an admin login attempt: ok, rejected or throttled
func (m *Metrics) ObserveLogin(result string) {
	m.adminLoginsTotal.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler that serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

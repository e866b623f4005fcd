// Package metrics exports search and vectorization metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nearby"

// Metrics holds the collectors of one engine instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searches       *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec
	filteredOut    *prometheus.CounterVec
	results        *prometheus.HistogramVec
	vectorizations *prometheus.CounterVec
	embedLatency   prometheus.Histogram
}

// Config configures Metrics.
type Config struct {
	// Registry to register on (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
}

// New creates and registers the collectors.
func New(cfg Config) *Metrics {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: registry}

	m.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of searches by requested mode and resulting search method",
		},
		[]string{"mode", "method"},
	)
	m.searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"mode"},
	)
	m.filteredOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "filtered_candidates_total",
			Help:      "Candidates dropped by the keyword relevance filter",
		},
		[]string{"mode"},
	)
	m.results = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"mode"},
	)
	m.vectorizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vectorizer",
			Name:      "profiles_total",
			Help:      "Profile vectorization attempts by outcome",
		},
		[]string{"outcome"},
	)
	m.embedLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vectorizer",
			Name:      "embed_latency_seconds",
			Help:      "Embedding service latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	registry.MustRegister(
		m.searches,
		m.searchLatency,
		m.filteredOut,
		m.results,
		m.vectorizations,
		m.embedLatency,
	)
	return m
}

// RecordSearch records one completed search.
func (m *Metrics) RecordSearch(mode, method string, latency time.Duration, results, filtered int) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode, method).Inc()
	m.searchLatency.WithLabelValues(mode).Observe(latency.Seconds())
	m.results.WithLabelValues(mode).Observe(float64(results))
	if filtered > 0 {
		m.filteredOut.WithLabelValues(mode).Add(float64(filtered))
	}
}

// RecordVectorization records a vectorization outcome such as "embedded",
// "cached", "stale_fallback" or "failed".
func (m *Metrics) RecordVectorization(outcome string) {
	if m == nil {
		return
	}
	m.vectorizations.WithLabelValues(outcome).Inc()
}

// RecordEmbedLatency records one call to the embedding service.
func (m *Metrics) RecordEmbedLatency(latency time.Duration) {
	if m == nil {
		return
	}
	m.embedLatency.Observe(latency.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

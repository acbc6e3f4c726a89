package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for ingestion and aggregation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ViewsTotal          *prometheus.CounterVec
	AggregationRuns     *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	AggregationFailed   prometheus.Counter
	CacheLookups        *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ViewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogpulse_views_total",
				Help: "Page-view submissions by outcome",
			},
			[]string{"result"},
		),
		AggregationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogpulse_aggregation_runs_total",
				Help: "Aggregation runs by status",
			},
			[]string{"status"},
		),
		AggregationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blogpulse_aggregation_duration_seconds",
				Help:    "Aggregation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		AggregationFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blogpulse_aggregation_failed_contents_total",
				Help: "Content ids whose rollup could not be written",
			},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogpulse_query_cache_lookups_total",
				Help: "Query cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.ViewsTotal,
		m.AggregationRuns,
		m.AggregationDuration,
		m.AggregationFailed,
		m.CacheLookups,
		prometheus.NewGoCollector(),
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordView counts one ingestion outcome.
func (m *Metrics) RecordView(result string) {
	if m == nil {
		return
	}
	m.ViewsTotal.WithLabelValues(result).Inc()
}

// RecordAggregation records one aggregation run.
func (m *Metrics) RecordAggregation(status string, duration time.Duration, failed int) {
	if m == nil {
		return
	}
	m.AggregationRuns.WithLabelValues(status).Inc()
	m.AggregationDuration.Observe(duration.Seconds())
	if failed > 0 {
		m.AggregationFailed.Add(float64(failed))
	}
}

// RecordCacheLookup counts a query cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

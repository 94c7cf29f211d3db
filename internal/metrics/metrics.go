// Package metrics exposes pipeline and retrieval measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geopro"

// Metrics owns a registry and the instruments recorded by the pipeline and
// the Overpass client. It implements pipeline.Observer and
// overpass.Observer.
type Metrics struct {
	registry *prometheus.Registry

	records         *prometheus.CounterVec
	recordDuration  prometheus.Histogram
	retrievalErrors prometheus.Counter
	queries         *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	cache           *prometheus.CounterVec
}

// New creates the instruments and registers them, with the Go runtime
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Source records processed by result (matched, fallback, suspended, rejected).",
		}, []string{"result"}),
		recordDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_duration_seconds",
			Help:      "Time to retrieve, score and resolve one record.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		retrievalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_failures_total",
			Help:      "Records that continued without candidates after retrieval failed.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overpass",
			Name:      "queries_total",
			Help:      "Overpass requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "overpass",
			Name:      "query_duration_seconds",
			Help:      "Overpass request latency by endpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"endpoint"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overpass",
			Name:      "cache_lookups_total",
			Help:      "Overpass response cache lookups by result (hit, miss).",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.records,
		m.recordDuration,
		m.retrievalErrors,
		m.queries,
		m.queryDuration,
		m.cache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry for registering further collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRecord records one processed source record.
func (m *Metrics) ObserveRecord(result string, elapsed time.Duration, retrievalFailed bool) {
	m.records.WithLabelValues(result).Inc()
	m.recordDuration.Observe(elapsed.Seconds())
	if retrievalFailed {
		m.retrievalErrors.Inc()
	}
}

// ObserveQuery records one Overpass request.
func (m *Metrics) ObserveQuery(endpoint, status string, elapsed time.Duration) {
	m.queries.WithLabelValues(endpoint, status).Inc()
	m.queryDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveCache records an Overpass cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// Package metrics defines the Prometheus collectors used by the indexer,
// searcher and ingestion services and exposes an HTTP handler for scraping.
// Recording helpers are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	SearchResultsCount    prometheus.Histogram
	SpellCorrectionsTotal prometheus.Counter
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	DocsIndexedTotal      *prometheus.CounterVec
	IndexSnapshotsTotal   *prometheus.CounterVec
	IndexDocuments        prometheus.Gauge
	IndexVocabulary       prometheus.Gauge
	IndexGeneration       prometheus.Gauge
	SimilarityRunsTotal   *prometheus.CounterVec
	SimilarityDuration    *prometheus.HistogramVec
	SimilarityFailedPairs prometheus.Counter
}

// New creates the collectors and registers them with reg, or with the
// default registry when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of matching documents per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		SpellCorrectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_spell_corrections_total",
				Help: "Total query tokens replaced by a vocabulary correction.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Documents processed by the indexer by outcome.",
			},
			[]string{"outcome"},
		),
		IndexSnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_snapshots_total",
				Help: "Total index snapshot operations by status.",
			},
			[]string{"status"},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Number of documents in the inverted index.",
			},
		),
		IndexVocabulary: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_vocabulary_size",
				Help: "Number of distinct terms in the inverted index.",
			},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation",
				Help: "Mutation counter of the inverted index.",
			},
		),
		SimilarityRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_runs_total",
				Help: "Similarity passes by kind (full, incremental) and status.",
			},
			[]string{"kind", "status"},
		),
		SimilarityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "similarity_run_duration_seconds",
				Help:    "Duration of similarity passes in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"kind"},
		),
		SimilarityFailedPairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "similarity_failed_pairs_total",
				Help: "Document pairs skipped because scoring failed.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SpellCorrectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexSnapshotsTotal,
		m.IndexDocuments,
		m.IndexVocabulary,
		m.IndexGeneration,
		m.SimilarityRunsTotal,
		m.SimilarityDuration,
		m.SimilarityFailedPairs,
	)
	return m
}

// RecordQuery records one resolved search. cacheStatus is "hit", "miss" or
// "disabled".
func (m *Metrics) RecordQuery(resultType, cacheStatus string, elapsed time.Duration, total, corrections int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	if resultType == "error" {
		return
	}
	m.SearchResultsCount.Observe(float64(total))
	m.SpellCorrectionsTotal.Add(float64(corrections))
	switch cacheStatus {
	case "hit":
		m.CacheHitsTotal.Inc()
	case "miss":
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) RecordIndexed(outcome string) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSnapshot(status string) {
	if m == nil {
		return
	}
	m.IndexSnapshotsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetIndexStats(documents, vocabulary int, generation uint64) {
	if m == nil {
		return
	}
	m.IndexDocuments.Set(float64(documents))
	m.IndexVocabulary.Set(float64(vocabulary))
	m.IndexGeneration.Set(float64(generation))
}

func (m *Metrics) RecordSimilarity(kind, status string, elapsed time.Duration, failedPairs int) {
	if m == nil {
		return
	}
	m.SimilarityRunsTotal.WithLabelValues(kind, status).Inc()
	m.SimilarityDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.SimilarityFailedPairs.Add(float64(failedPairs))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

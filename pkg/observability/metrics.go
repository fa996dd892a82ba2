package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the search subsystem
type Metrics struct {
	// Search metrics
	SearchRequestsTotal *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	SearchResultCount   *prometheus.HistogramVec

	// Index rebuild metrics
	RebuildTotal               *prometheus.CounterVec
	RebuildDuration            *prometheus.HistogramVec
	RebuildDocumentsIndexed    *prometheus.GaugeVec
	RebuildLastSuccessUnix     *prometheus.GaugeVec
	RebuildConsecutiveFailures *prometheus.GaugeVec
	RebuildCoalescedTotal      *prometheus.CounterVec

	// Projection cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SearchRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plansearch_search_requests_total",
				Help: "Total number of search requests",
			},
			[]string{"entity_type", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plansearch_search_duration_seconds",
				Help:    "Search request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity_type"},
		),
		SearchResultCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plansearch_search_result_count",
				Help:    "Number of results returned per search page",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6),
			},
			[]string{"entity_type"},
		),

		RebuildTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plansearch_rebuild_total",
				Help: "Total number of index rebuilds",
			},
			[]string{"entity_type", "status"},
		),
		RebuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plansearch_rebuild_duration_seconds",
				Help:    "Index rebuild duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"entity_type"},
		),
		RebuildDocumentsIndexed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plansearch_rebuild_documents_indexed",
				Help: "Number of documents written by the last successful rebuild",
			},
			[]string{"entity_type"},
		),
		RebuildLastSuccessUnix: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plansearch_rebuild_last_success_timestamp_seconds",
				Help: "Unix timestamp of the last successful rebuild",
			},
			[]string{"entity_type"},
		),
		RebuildConsecutiveFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plansearch_rebuild_consecutive_failures",
				Help: "Number of consecutive rebuild failures per entity type",
			},
			[]string{"entity_type"},
		),
		RebuildCoalescedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plansearch_rebuild_coalesced_total",
				Help: "Rebuild requests coalesced into an in-flight rebuild",
			},
			[]string{"entity_type"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plansearch_cache_hits_total",
				Help: "Total number of projection cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plansearch_cache_misses_total",
				Help: "Total number of projection cache misses",
			},
			[]string{"layer"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plansearch_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plansearch_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.SearchRequestsTotal,
		m.SearchDuration,
		m.SearchResultCount,
		m.RebuildTotal,
		m.RebuildDuration,
		m.RebuildDocumentsIndexed,
		m.RebuildLastSuccessUnix,
		m.RebuildConsecutiveFailures,
		m.RebuildCoalescedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

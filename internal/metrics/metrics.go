// Package metrics holds the Prometheus collectors of the sync pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "court_sync"

type Metrics struct {
	registry *prometheus.Registry

	queries      *prometheus.CounterVec
	syncRuns     *prometheus.CounterVec
	newMovements *prometheus.CounterVec
	courtLatency *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Court queries by court, query type and terminal status.",
		}, []string{"court", "query_type", "status"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Batch synchronizations by type and final status.",
		}, []string{"type", "status"}),
		newMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_new_total",
			Help:      "Movements stored for the first time.",
		}, []string{"court"}),
		courtLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "court_request_duration_seconds",
			Help:      "Latency of HTTP calls to court APIs.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"api_type", "operation", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries,
		m.syncRuns,
		m.newMovements,
		m.courtLatency,
	)
	return m
}

func (m *Metrics) QueryFinished(court string, queryType database.QueryType, status database.QueryStatus) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(court, string(queryType), string(status)).Inc()
}

func (m *Metrics) SyncFinished(syncType database.SyncType, status database.SyncStatus) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(string(syncType), string(status)).Inc()
}

func (m *Metrics) MovementsStored(court string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.newMovements.WithLabelValues(court).Add(float64(n))
}

// ObserveCourtRequest satisfies courtapi.Observer. Status 0 means the
// request never got a response.
func (m *Metrics) ObserveCourtRequest(apiType database.APIType, operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.courtLatency.WithLabelValues(string(apiType), operation, code).Observe(elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes recorded by ObserveQuery.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parquetsql_queries_total",
			Help: "Total number of executed queries by outcome.",
		},
		[]string{"outcome"},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parquetsql_query_duration_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parquetsql_query_rows",
			Help:    "Number of rows materialized per successful query.",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		},
	)
	filesLoadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parquetsql_files_loaded_total",
			Help: "Total number of tabular file loads by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
	cellExtractionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parquetsql_cell_extraction_errors_total",
			Help: "Total number of result cells replaced by an error marker.",
		},
	)
	queriesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parquetsql_queries_rejected_total",
			Help: "Total number of queries rejected because another query was running.",
		},
	)
	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parquetsql_sessions_open",
			Help: "Current number of open file sessions.",
		},
	)

	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parquetsql_api_requests_total",
			Help: "Total number of API requests by route and status class.",
		},
		[]string{"route", "class"},
	)
	apiRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parquetsql_api_request_seconds",
			Help:    "API request latency by route.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"route"},
	)
	apiInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parquetsql_api_requests_in_flight",
			Help: "API requests currently being served, including queries waiting for completion.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationMs,
		queryRows,
		filesLoadedTotal,
		cellExtractionErrorsTotal,
		queriesRejectedTotal,
		sessionsOpen,
		apiRequestsTotal,
		apiRequestSeconds,
		apiInFlight,
	)
}

func ObserveQuery(outcome string, elapsed time.Duration, rows int) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
	if outcome == OutcomeSuccess {
		queryRows.Observe(float64(rows))
	}
}

func ObserveFileLoad(format string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	filesLoadedTotal.WithLabelValues(format, outcome).Inc()
}

func AddCellExtractionErrors(count int) {
	if count <= 0 {
		return
	}
	cellExtractionErrorsTotal.Add(float64(count))
}

func IncrementQueriesRejected() {
	queriesRejectedTotal.Inc()
}

func SetSessionsOpen(count int) {
	if count < 0 {
		count = 0
	}
	sessionsOpen.Set(float64(count))
}

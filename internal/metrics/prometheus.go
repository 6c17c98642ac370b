package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the daily model pipeline

var (
	// Upstream API metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_api_calls_total",
			Help: "Total number of upstream API calls",
		},
		[]string{"upstream", "endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlb_daily_api_call_duration_seconds",
			Help:    "Duration of upstream API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream", "endpoint"},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_api_retries_total",
			Help: "Total number of retried upstream requests",
		},
		[]string{"upstream", "endpoint"},
	)

	// Database metrics (postgres cache backend)
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlb_daily_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlb_daily_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind", "reason"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlb_daily_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Enrichment metrics
	FallbackStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_fallback_steps_total",
			Help: "Split fallback chain outcomes by the step that succeeded",
		},
		[]string{"entity", "step"},
	)

	// Build metrics
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_builds_total",
			Help: "Total number of model builds",
		},
		[]string{"status"},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mlb_daily_build_duration_seconds",
			Help:    "Duration of model builds in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	GamesInModel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlb_daily_games",
			Help: "Number of games in the last built model",
		},
	)

	TBDRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlb_daily_tbd_rate",
			Help: "Share of unannounced starters in the last built model",
		},
	)

	FourOfFour = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlb_daily_four_of_four",
			Help: "1 when every source contributed live or cached data to the last model",
		},
	)

	LastSuccessfulBuild = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlb_daily_last_successful_build_timestamp",
			Help: "Timestamp of last successful build",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlb_daily_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordAPICall records an upstream API call metric
func RecordAPICall(upstream, endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(upstream, endpoint, status).Inc()
	APICallDuration.WithLabelValues(upstream, endpoint).Observe(duration)
}

// RecordAPIRetry records a retried upstream request
func RecordAPIRetry(upstream, endpoint string) {
	APIRetriesTotal.WithLabelValues(upstream, endpoint).Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(kind string) {
	CacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss and why it happened
func RecordCacheMiss(kind, reason string) {
	CacheMissesTotal.WithLabelValues(kind, reason).Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordFallbackStep records which step of a split fallback chain succeeded
func RecordFallbackStep(entity, step string) {
	FallbackStepsTotal.WithLabelValues(entity, step).Inc()
}

// RecordBuild records a finished model build
func RecordBuild(status string, duration float64, games int, tbdRate float64, fourOfFour bool) {
	BuildsTotal.WithLabelValues(status).Inc()
	BuildDuration.Observe(duration)
	GamesInModel.Set(float64(games))
	TBDRate.Set(tbdRate)
	if fourOfFour {
		FourOfFour.Set(1)
	} else {
		FourOfFour.Set(0)
	}

	if status == "success" {
		LastSuccessfulBuild.SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

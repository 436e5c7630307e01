package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TxAttempts counts transaction attempts by operation.
	TxAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_tx_attempts_total",
		Help: "Total number of transaction attempts",
	}, []string{"operation"})

	// TxConflicts counts attempts that failed commit-time version checks.
	TxConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_tx_conflicts_total",
		Help: "Total number of transaction attempts rejected by version checks",
	}, []string{"operation"})

	// TxExhausted counts transactions that ran out of attempts.
	TxExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_tx_exhausted_total",
		Help: "Total number of transactions surfaced as conflicts",
	}, []string{"operation"})

	// TxLatency records end-to-end transaction latency including retries.
	TxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_tx_latency_seconds",
		Help:    "Transaction latency in seconds, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// RepairCorrected counts posts whose comment count was overwritten.
	RepairCorrected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_repair_corrected_total",
		Help: "Total number of posts corrected by the comment count repair job",
	})

	// RepairFailures counts posts the repair job had to skip.
	RepairFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_repair_failures_total",
		Help: "Total number of posts the repair job failed to process",
	})

	// XPAwarded sums XP granted by source.
	XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_xp_awarded_total",
		Help: "Total XP awarded by source",
	}, []string{"source"})

	// LevelUps counts level-up transitions by reached level.
	LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_level_ups_total",
		Help: "Total number of level-up transitions",
	}, []string{"level"})

	// CacheRequests counts cache lookups by outcome.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_cache_requests_total",
		Help: "Total cache lookups by outcome",
	}, []string{"outcome"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackTx returns a function that records transaction latency when called.
func TrackTx(operation string) func() {
	start := time.Now()
	return func() {
		TxLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

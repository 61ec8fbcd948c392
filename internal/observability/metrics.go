package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FinSight.
type Metrics struct {
	// --- Delta ingestion ---
	DeltasReceived    *prometheus.CounterVec
	DeltaParseRejects prometheus.Counter
	DeltaNoops        prometheus.Counter

	// --- Cube worker ---
	DirtyTargets   prometheus.Gauge
	FlushBatchSize prometheus.Histogram
	FlushDuration  prometheus.Histogram
	RegenTargets   *prometheus.CounterVec
	RegenRetries   prometheus.Counter

	// --- Populate / rebuild ---
	RebuildChunks  prometheus.Counter
	RebuildTargets prometheus.Counter

	// --- Balance queries ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	BalanceMethod *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	queryBuckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}

	return &Metrics{
		DeltasReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_deltas_received_total",
			Help: "Transaction deltas received, by operation",
		}, []string{"operation"}),

		DeltaParseRejects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fin_delta_parse_rejects_total",
			Help: "Delta messages rejected as malformed",
		}),

		DeltaNoops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fin_delta_noops_total",
			Help: "Updates touching no cube-relevant field",
		}),

		DirtyTargets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fin_cube_dirty_targets",
			Help: "Cube targets currently awaiting regeneration",
		}),

		FlushBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fin_cube_flush_batch_size",
			Help:    "Targets per regeneration flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fin_cube_flush_duration_seconds",
			Help:    "Regeneration flush duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		RegenTargets: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_cube_regen_targets_total",
			Help: "Cube targets regenerated, by outcome",
		}, []string{"outcome"}),

		RegenRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fin_cube_regen_retries_total",
			Help: "Failed targets re-queued for the next flush",
		}),

		RebuildChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fin_cube_rebuild_chunks_total",
			Help: "Month chunks completed by populate/rebuild",
		}),

		RebuildTargets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fin_cube_rebuild_targets_total",
			Help: "Targets regenerated by populate/rebuild",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_query_requests_total",
			Help: "API requests, by endpoint and status",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fin_query_duration_seconds",
			Help:    "API request latency",
			Buckets: queryBuckets,
		}, []string{"endpoint"}),

		BalanceMethod: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_balance_method_total",
			Help: "Balance reconstructions, by calculation method",
		}, []string{"method"}),
	}
}

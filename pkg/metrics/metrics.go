// Package metrics exposes the gateway's Prometheus instrumentation,
// following the same flat var-block-plus-init()-registration pattern the
// teacher repo's pkg/metrics uses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkerLastBlock = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "litegate_worker_last_block",
			Help: "Last masterchain seqno reported by each worker",
		},
		[]string{"ls_index"},
	)

	WorkerArchival = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "litegate_worker_is_archival",
			Help: "Whether a worker's upstream is archival (1) or not (0)",
		},
		[]string{"ls_index"},
	)

	WorkerWorking = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "litegate_worker_is_working",
			Help: "Whether a worker is within consensus freshness (1) or not (0)",
		},
		[]string{"ls_index"},
	)

	WorkerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litegate_worker_restarts_total",
			Help: "Total number of worker restarts by slot",
		},
		[]string{"ls_index"},
	)

	WorkerQuarantined = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "litegate_worker_quarantined",
			Help: "Whether a worker slot is currently quarantined (1) or not (0)",
		},
		[]string{"ls_index"},
	)

	ConsensusSeqno = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "litegate_consensus_seqno",
			Help: "Current cluster consensus block seqno",
		},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "litegate_dispatch_duration_seconds",
			Help:    "Time taken to dispatch and complete a task, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litegate_dispatch_total",
			Help: "Total dispatches by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litegate_cache_hits_total",
			Help: "Total cache hits by method",
		},
		[]string{"method"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litegate_cache_misses_total",
			Help: "Total cache misses by method",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkerLastBlock,
		WorkerArchival,
		WorkerWorking,
		WorkerRestartsTotal,
		WorkerQuarantined,
		ConsensusSeqno,
		DispatchDuration,
		DispatchTotal,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

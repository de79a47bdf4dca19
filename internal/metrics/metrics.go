// Package metrics exposes the gateway's prometheus collectors.
//
// These are the only externally visible side effects of the gateway
// besides the result values themselves: submission and batching
// counters, pool saturation, and wait-time distributions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts every query submitted to the coalescer
	SubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livegate",
		Name:      "submissions_total",
		Help:      "Total number of queries submitted to the coalescer",
	})

	// BatchedTotal counts members flushed as part of a batch of size > 1
	BatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livegate",
		Name:      "batched_total",
		Help:      "Total number of queries flushed as part of a batch of size > 1",
	})

	// BatchSize tracks flushed batch sizes per intent
	BatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "livegate",
		Name:      "batch_size",
		Help:      "Number of members per flushed batch",
		Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
	}, []string{"intent"})

	// PoolAcquiresTotal counts slot acquisition attempts
	PoolAcquiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livegate",
		Name:      "pool_acquires_total",
		Help:      "Total number of pool slot acquisition attempts",
	})

	// PoolTimeoutsTotal counts acquisitions that exceeded the acquire timeout
	PoolTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livegate",
		Name:      "pool_timeouts_total",
		Help:      "Total number of pool acquisitions that timed out",
	})

	// PoolPeakInUse tracks the historical maximum concurrent usage
	PoolPeakInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livegate",
		Name:      "pool_peak_in_use",
		Help:      "Historical maximum number of pool slots in use concurrently",
	})

	// PoolInUse tracks the current number of slots in use
	PoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livegate",
		Name:      "pool_in_use",
		Help:      "Current number of pool slots in use",
	})

	// PoolWaitMs tracks time spent waiting for a free slot
	PoolWaitMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "livegate",
		Name:      "pool_wait_ms",
		Help:      "Time (in ms) spent waiting for a free pool slot",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 500, 1000, 5000},
	})
)

// Handler returns the HTTP handler serving the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

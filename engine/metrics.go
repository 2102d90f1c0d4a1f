package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's instrumentation.
type Metrics struct {
	poolsCreated prometheus.Counter
	swaps        *prometheus.CounterVec
	swapDuration prometheus.Histogram
	flashes      prometheus.Counter
	lockFailures prometheus.Counter
}

// NewMetrics registers the engine metric set on the given registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		poolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clmm",
			Name:      "pools_created_total",
			Help:      "Number of pools created in this engine.",
		}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clmm",
			Name:      "swaps_total",
			Help:      "Number of executed swaps, by direction.",
		}, []string{"direction"}),
		swapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clmm",
			Name:      "swap_duration_seconds",
			Help:      "Wall time of the swap loop including receipt settlement.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		flashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clmm",
			Name:      "flash_loans_total",
			Help:      "Number of settled flash loans.",
		}),
		lockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clmm",
			Name:      "pool_lock_failures_total",
			Help:      "Operations refused because a pool held an unsettled receipt.",
		}),
	}
	registry.MustRegister(
		m.poolsCreated,
		m.swaps,
		m.swapDuration,
		m.flashes,
		m.lockFailures,
	)
	return m
}

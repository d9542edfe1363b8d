package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics records swap, liquidity and price-query activity for the pool
// RPC surface.
type PoolMetrics struct {
	swaps        *prometheus.CounterVec
	swapLatency  *prometheus.HistogramVec
	liquidityOps *prometheus.CounterVec
	priceQueries *prometheus.CounterVec
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// Metrics returns the lazily-initialised metrics bundle shared by all
// handlers.
func Metrics() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ammpool",
				Subsystem: "amm",
				Name:      "swaps_total",
				Help:      "Total swap requests segmented by direction and outcome.",
			}, []string{"direction", "outcome"}),
			swapLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ammpool",
				Subsystem: "amm",
				Name:      "swap_duration_seconds",
				Help:      "Latency distribution for swap execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"direction"}),
			liquidityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ammpool",
				Subsystem: "amm",
				Name:      "liquidity_ops_total",
				Help:      "Total liquidity operations segmented by op and outcome.",
			}, []string{"op", "outcome"}),
			priceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ammpool",
				Subsystem: "amm",
				Name:      "price_queries_total",
				Help:      "Total spot price queries segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			poolRegistry.swaps,
			poolRegistry.swapLatency,
			poolRegistry.liquidityOps,
			poolRegistry.priceQueries,
		)
	})
	return poolRegistry
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// ObserveSwap records one swap attempt and its execution latency.
func (m *PoolMetrics) ObserveSwap(direction string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(direction, outcomeLabel(err)).Inc()
	m.swapLatency.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}

// ObserveLiquidityOp records one add or remove liquidity attempt.
func (m *PoolMetrics) ObserveLiquidityOp(op string, err error) {
	if m == nil {
		return
	}
	m.liquidityOps.WithLabelValues(op, outcomeLabel(err)).Inc()
}

// ObservePriceQuery records one spot price query.
func (m *PoolMetrics) ObservePriceQuery(err error) {
	if m == nil {
		return
	}
	m.priceQueries.WithLabelValues(outcomeLabel(err)).Inc()
}

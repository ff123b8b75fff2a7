package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics aggregates telemetry for the auction engines sharing the
// pooled ledger.
type MarketMetrics struct {
	swapsExecuted  *prometheus.CounterVec
	swapVolume     *prometheus.CounterVec
	feesRouted     *prometheus.CounterVec
	auctionsActive prometheus.Gauge
	makersJoined   *prometheus.CounterVec
}

var (
	marketsOnce     sync.Once
	marketsRegistry *MarketMetrics
)

// Markets returns the process-wide market metrics bundle, registering it on
// first use.
func Markets() *MarketMetrics {
	marketsOnce.Do(func() {
		marketsRegistry = &MarketMetrics{
			swapsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "markets_swaps_executed_total",
				Help: "Count of executed swaps by backing pool.",
			}, []string{"pool"}),
			swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "markets_swap_volume_wei",
				Help: "Cumulative swap input volume by backing pool, in asset base units.",
			}, []string{"pool"}),
			feesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "markets_fees_routed_wei",
				Help: "Cumulative routed fee value by share class.",
			}, []string{"share"}),
			auctionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "markets_auctions_active",
				Help: "Number of auctions currently holding flash-accounted reserves.",
			}),
			makersJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "markets_makers_joined_total",
				Help: "Count of maker joins by auction kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			marketsRegistry.swapsExecuted,
			marketsRegistry.swapVolume,
			marketsRegistry.feesRouted,
			marketsRegistry.auctionsActive,
			marketsRegistry.makersJoined,
		)
	})
	return marketsRegistry
}

// ObserveSwap records an executed swap against the pool that received the
// input asset.
func (m *MarketMetrics) ObserveSwap(poolID string, volume float64) {
	if m == nil {
		return
	}
	m.swapsExecuted.WithLabelValues(poolID).Inc()
	if volume > 0 {
		m.swapVolume.WithLabelValues(poolID).Add(volume)
	}
}

// ObserveFeeRouted records routed fee value by share class (maker, treasury,
// active_credit, fee_index).
func (m *MarketMetrics) ObserveFeeRouted(share string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.feesRouted.WithLabelValues(share).Add(amount)
}

// AuctionOpened increments the active auction gauge.
func (m *MarketMetrics) AuctionOpened() {
	if m == nil {
		return
	}
	m.auctionsActive.Inc()
}

// AuctionClosed decrements the active auction gauge.
func (m *MarketMetrics) AuctionClosed() {
	if m == nil {
		return
	}
	m.auctionsActive.Dec()
}

// ObserveMakerJoined counts a maker join for the given auction kind.
func (m *MarketMetrics) ObserveMakerJoined(kind string) {
	if m == nil {
		return
	}
	m.makersJoined.WithLabelValues(kind).Inc()
}

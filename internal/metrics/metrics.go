// Package metrics exposes Prometheus counters/gauges for the maker,
// grounded on chidi150c-coinbase/metrics.go: a handful of package-level
// CounterVec/GaugeVec registered once, renamed to a perpmm_* series for
// this agent's domain (orders, regime transitions, PnL, fees) instead of
// the source's equity/walk-forward series.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpmm_orders_placed_total",
			Help: "Orders placed, by side and role.",
		},
		[]string{"side", "role"},
	)

	OrdersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpmm_orders_cancelled_total",
			Help: "Orders cancelled, by reason.",
		},
		[]string{"reason"},
	)

	RegimeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpmm_regime_transitions_total",
			Help: "Risk regime transitions, by target regime.",
		},
		[]string{"regime"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpmm_fills_total",
			Help: "Fills recorded, by side.",
		},
		[]string{"side"},
	)

	RealizedPnLUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpmm_realized_pnl_usd_total",
			Help: "Cumulative realized PnL in USD (can go negative; reported as a running sum via Add).",
		},
	)

	FeesPaidUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perpmm_fees_paid_usd_total",
			Help: "Cumulative fees paid in USD.",
		},
	)

	PositionQty = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpmm_position_qty",
			Help: "Current signed position quantity.",
		},
	)

	UnrealizedPnLUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpmm_unrealized_pnl_usd",
			Help: "Last venue-reported unrealized PnL in USD.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		OrdersCancelled,
		RegimeTransitions,
		Fills,
		RealizedPnLUSD,
		FeesPaidUSD,
		PositionQty,
		UnrealizedPnLUSD,
	)
}

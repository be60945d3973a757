package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxBars = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_bars_total",
			Help: "Bars processed per symbol",
		},
		[]string{"symbol"},
	)

	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_decisions_total",
			Help: "Entry decisions by action and reason",
		},
		[]string{"action", "reason"},
	)

	mtxEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_entries_total",
			Help: "Positions opened, by side and setup type",
		},
		[]string{"side", "setup"},
	)

	mtxDataErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_data_errors_total",
			Help: "Malformed or out-of-order feed events rejected, per symbol",
		},
		[]string{"symbol"},
	)

	mtxHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_halted_symbols",
			Help: "Symbols halted after reconciliation",
		},
	)

	mtxRealizedPL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_realized_pl_usd",
			Help: "Realized session P&L in account currency",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxBars,
		mtxDecisions,
		mtxEntries,
		mtxDataErrors,
		mtxHalted,
		mtxRealizedPL,
	)
}

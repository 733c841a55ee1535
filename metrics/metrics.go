package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the decision pipeline. The dashboard serves
// them on /metrics via promhttp.

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "medusa_cycles_total", Help: "Decision cycles completed"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medusa_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
	SignalsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "medusa_signals_live", Help: "Unexpired signals in the aggregator"},
	)
	SignalsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "medusa_signals_ingested_total", Help: "Signals ingested by source"},
		[]string{"source"},
	)
	ProposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "medusa_proposals_total", Help: "Proposals generated by strategy"},
		[]string{"strategy"},
	)
	TradesApproved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "medusa_trades_approved_total", Help: "Proposals approved by risk"},
		[]string{"strategy", "asset"},
	)
	TradesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "medusa_trades_rejected_total", Help: "Proposals rejected by risk"},
		[]string{"reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "medusa_open_positions", Help: "Currently open positions"},
	)
	OpenExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "medusa_open_exposure_dollars", Help: "Total open notional exposure"},
	)
	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "medusa_daily_realized_pnl_dollars", Help: "Realized PnL since the UTC day start"},
	)
	RegimeCode = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "medusa_regime", Help: "Current regime as an enum code"},
	)
	KillSwitch = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "medusa_kill_switch", Help: "1 while the daily-loss kill switch is tripped"},
	)
	FeedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "medusa_feed_errors_total", Help: "Upstream feed failures"},
		[]string{"feed"},
	)
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "medusa_orders_submitted_total", Help: "Orders handed to the broker"},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, CycleDuration,
		SignalsLive, SignalsIngested,
		ProposalsTotal, TradesApproved, TradesRejected,
		OpenPositions, OpenExposure, DailyPnL,
		RegimeCode, KillSwitch,
		FeedErrors, OrdersSubmitted,
	)
}

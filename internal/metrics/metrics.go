package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-wide Prometheus collectors, registered on the default registry and
// served by the metrics server.
var (
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinforge",
		Name:      "trades_total",
		Help:      "Executed trades by side and mode",
	}, []string{"side", "mode"})

	FailedOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinforge",
		Name:      "failed_orders_total",
		Help:      "Orders that returned an error",
	}, []string{"side"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinforge",
		Name:      "open_positions",
		Help:      "Currently tracked open positions",
	})

	RealizedPnl = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinforge",
		Name:      "realized_pnl",
		Help:      "Cumulative realized PnL in quote currency",
	})

	DailyRealizedPnl = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinforge",
		Name:      "daily_realized_pnl",
		Help:      "Realized PnL for the current trading day",
	})

	SymbolScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "coinforge",
		Name:      "symbol_score",
		Help:      "Latest multi-factor total score per symbol",
	}, []string{"symbol"})

	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinforge",
		Name:      "job_runs_total",
		Help:      "Scheduler job executions",
	}, []string{"job"})

	JobErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinforge",
		Name:      "job_errors_total",
		Help:      "Scheduler job failures",
	}, []string{"job"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coinforge",
		Name:      "job_duration_seconds",
		Help:      "Scheduler job wall time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	TradingHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinforge",
		Name:      "trading_halted",
		Help:      "1 when entries are blocked by the daily circuit breaker or a manual pause",
	})

	ExchangeBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinforge",
		Name:      "exchange_breaker_open",
		Help:      "1 when the exchange order circuit breaker is open",
	})
)

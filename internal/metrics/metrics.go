// Package metrics exposes Prometheus metrics and the health endpoint of the
// trading engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	TicksTotal   *prometheus.CounterVec // labels: symbol
	TickDuration prometheus.Histogram
	TickErrors   *prometheus.CounterVec // labels: kind

	// Strategy and consensus
	VotesTotal        *prometheus.CounterVec // labels: strategy, vote
	SignalsTotal      *prometheus.CounterVec // labels: signal
	MissingIndicators *prometheus.CounterVec // labels: strategy

	// Ledger
	TradesTotal         *prometheus.CounterVec // labels: action, direction, reason
	SkippedTrades       *prometheus.CounterVec // labels: reason
	Capital             prometheus.Gauge
	OpenPositions       prometheus.Gauge
	PersistenceFailures prometheus.Counter
	TradingHalted       prometheus.Gauge // 0=trading, 1=halted

	// Trade history
	HistoryFailures *prometheus.CounterVec // labels: sink
	HistoryOverflow prometheus.Counter

	// Collaborators
	SnapshotErrors *prometheus.CounterVec // labels: source
	AlertFailures  prometheus.Counter
	BreakerState   *prometheus.GaugeVec // labels: name; 0=closed, 1=open, 2=half-open
	MarketState    prometheus.Gauge     // 0=closed, 1=open
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_ticks_total",
			Help: "Evaluation ticks processed per symbol",
		}, []string{"symbol"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_tick_duration_seconds",
			Help:    "Time to evaluate and act on one tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_tick_errors_total",
			Help: "Ticks that ended with a surfaced error, by kind",
		}, []string{"kind"}),

		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_votes_total",
			Help: "Strategy votes by strategy and outcome",
		}, []string{"strategy", "vote"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_signals_total",
			Help: "Consensus signals produced",
		}, []string{"signal"}),
		MissingIndicators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_missing_indicators_total",
			Help: "Strategy evaluations skipped for missing indicator data",
		}, []string{"strategy"}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_trades_total",
			Help: "Position opens and closes",
		}, []string{"action", "direction", "reason"}),
		SkippedTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_skipped_trades_total",
			Help: "Entries skipped (insufficient_capital, halted)",
		}, []string{"reason"}),
		Capital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_available_capital",
			Help: "Capital available for new entries",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_open_positions",
			Help: "Number of open positions",
		}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_persistence_failures_total",
			Help: "Failed writes of the position store",
		}),
		TradingHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_trading_halted",
			Help: "1 while new entries are refused after persistence failures",
		}),

		HistoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_history_failures_total",
			Help: "Trade records a history sink failed to store",
		}, []string{"sink"}),
		HistoryOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_history_queue_overflow_total",
			Help: "Trade records written synchronously because the queue was full",
		}),

		SnapshotErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_snapshot_errors_total",
			Help: "Indicator snapshot fetch failures",
		}, []string{"source"}),
		AlertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_alert_failures_total",
			Help: "Alerts that could not be delivered",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.TickErrors,
		m.VotesTotal,
		m.SignalsTotal,
		m.MissingIndicators,
		m.TradesTotal,
		m.SkippedTrades,
		m.Capital,
		m.OpenPositions,
		m.PersistenceFailures,
		m.TradingHalted,
		m.HistoryFailures,
		m.HistoryOverflow,
		m.SnapshotErrors,
		m.AlertFailures,
		m.BreakerState,
		m.MarketState,
	)

	return m
}

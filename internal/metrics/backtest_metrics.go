// Package metrics defines backtesting-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by final state",
	}, []string{"strategy", "state"})

	BacktestTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "backtest_ticks_total",
		Help:      "Total number of simulated days processed by backtests",
	}, []string{"strategy"})
)

// Backtest histogram vectors
var (
	BacktestTotalReturn = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "backtest_total_return",
		Help:      "Total return of finished backtests by strategy",
		Buckets:   []float64{-0.5, -0.25, -0.1, -0.05, 0, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"strategy"})

	BacktestMaxDrawdown = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "backtest_max_drawdown",
		Help:      "Maximum peak-to-trough drawdown of finished backtests by strategy",
		Buckets:   []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.5},
	}, []string{"strategy"})

	BacktestSharpeRatio = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "backtest_sharpe_ratio",
		Help:      "Annualized Sharpe ratio of daily returns of finished backtests by strategy",
		Buckets:   []float64{-2, -1, 0, 0.5, 1, 1.5, 2, 3},
	}, []string{"strategy"})
)

// RecordBacktestRun records a backtest reaching a terminal state.
// state should be one of: "finished", "error", "cancelled"
func RecordBacktestRun(strategy, state string) {
	BacktestRunsTotal.WithLabelValues(strategy, state).Inc()
}

// RecordBacktestTick records one simulated day.
func RecordBacktestTick(strategy string) {
	BacktestTicksTotal.WithLabelValues(strategy).Inc()
}

// RecordBacktestReturn records the total return of a finished backtest.
func RecordBacktestReturn(strategy string, totalReturn float64) {
	BacktestTotalReturn.WithLabelValues(strategy).Observe(totalReturn)
}

// RecordBacktestRisk records the drawdown and Sharpe ratio of a finished backtest.
func RecordBacktestRisk(strategy string, maxDrawdown, sharpeRatio float64) {
	BacktestMaxDrawdown.WithLabelValues(strategy).Observe(maxDrawdown)
	BacktestSharpeRatio.WithLabelValues(strategy).Observe(sharpeRatio)
}

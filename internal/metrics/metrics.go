// Package metrics provides centralized Prometheus metrics registry for the trading bot.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	ActionsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "actions_submitted_total",
		Help:      "Total number of trading actions submitted by order type and resulting status",
	}, []string{"order_type", "status"})
	BrokerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "broker_errors_total",
		Help:      "Total number of broker errors by kind",
	}, []string{"kind"})
	TradingTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "trading_tasks_total",
		Help:      "Total number of trading tasks by final state",
	}, []string{"mode", "state"})
	StrategyEvaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "strategy_evaluations_total",
		Help:      "Total number of strategy evaluations",
	})
	StrategySignalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "strategy_signals_total",
		Help:      "Total number of trading actions generated by strategies",
	})
	CircuitBreakerTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips",
	})
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "events_published_total",
		Help:      "Total number of domain events published by topic and outcome",
	}, []string{"topic", "status"})
)

// Gauge metrics
var (
	CurrentEquity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trading_bot",
		Name:      "current_equity",
		Help:      "Account equity observed by the last live trading task",
	})
	AvailableCash = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trading_bot",
		Name:      "available_cash",
		Help:      "Available cash observed by the last live trading task",
	})
	ActiveBacktests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trading_bot",
		Name:      "active_backtests",
		Help:      "Number of backtests currently running",
	})
	ActiveStrategy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trading_bot",
		Name:      "active_strategy",
		Help:      "Set to 1 for the strategy currently selected for live trading",
	}, []string{"strategy"})
	CacheHitRatio = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trading_bot",
		Name:      "cache_hit_ratio",
		Help:      "Hit ratio of in-memory caches",
	}, []string{"cache"})
)

// Histogram metrics
var (
	OrderSubmissionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "order_submission_latency_seconds",
		Help:      "Latency of broker order submissions in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	StrategyEvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "strategy_evaluation_duration_seconds",
		Help:      "Duration of strategy evaluation in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	TradingTaskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "trading_task_duration_seconds",
		Help:      "Duration of live trading ticks in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
	BacktestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trading_bot",
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest runs in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(ActionsSubmittedTotal)
		registry.MustRegister(BrokerErrorsTotal)
		registry.MustRegister(TradingTasksTotal)
		registry.MustRegister(StrategyEvaluationsTotal)
		registry.MustRegister(StrategySignalsTotal)
		registry.MustRegister(CircuitBreakerTripsTotal)
		registry.MustRegister(EventsPublishedTotal)

		// Register gauge metrics
		registry.MustRegister(CurrentEquity)
		registry.MustRegister(AvailableCash)
		registry.MustRegister(ActiveBacktests)
		registry.MustRegister(ActiveStrategy)
		registry.MustRegister(CacheHitRatio)

		// Register histogram metrics
		registry.MustRegister(OrderSubmissionLatency)
		registry.MustRegister(StrategyEvaluationDuration)
		registry.MustRegister(TradingTaskDuration)
		registry.MustRegister(BacktestDuration)

		// Register strategy metrics
		registry.MustRegister(StrategyDecisionsTotal)
		registry.MustRegister(StrategyActionsGenerated)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestTotalReturn)
		registry.MustRegister(BacktestTicksTotal)
		registry.MustRegister(BacktestMaxDrawdown)
		registry.MustRegister(BacktestSharpeRatio)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordActionSubmitted records the outcome of one order submission.
func RecordActionSubmitted(orderType, status string, durationSeconds float64) {
	ActionsSubmittedTotal.WithLabelValues(orderType, status).Inc()
	OrderSubmissionLatency.Observe(durationSeconds)
}

// RecordBrokerError records a classified broker error.
func RecordBrokerError(kind string) {
	BrokerErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordTradingTask records a finished trading task. mode is "live" or "backtest".
func RecordTradingTask(mode, state string, durationSeconds float64) {
	TradingTasksTotal.WithLabelValues(mode, state).Inc()
	if mode == "live" {
		TradingTaskDuration.Observe(durationSeconds)
	}
}

// RecordStrategyEvaluation records a strategy evaluation event.
func RecordStrategyEvaluation(durationSeconds float64) {
	StrategyEvaluationsTotal.Inc()
	StrategyEvaluationDuration.Observe(durationSeconds)
}

// RecordStrategySignals records generated trading actions.
func RecordStrategySignals(count int) {
	StrategySignalsTotal.Add(float64(count))
}

// RecordCircuitBreakerTrip records a circuit breaker trip event.
func RecordCircuitBreakerTrip() {
	CircuitBreakerTripsTotal.Inc()
}

// RecordEventPublished records a publish attempt. status is "success" or "failure".
func RecordEventPublished(topic, status string) {
	EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}

// UpdateAccount updates the equity and cash gauges.
func UpdateAccount(equity, cash float64) {
	CurrentEquity.Set(equity)
	AvailableCash.Set(cash)
}

// UpdateActiveBacktests updates the running backtests gauge.
func UpdateActiveBacktests(count float64) {
	ActiveBacktests.Set(count)
}

// SetActiveStrategy marks name as the selected strategy and clears previous.
func SetActiveStrategy(previous, name string) {
	if previous != "" {
		ActiveStrategy.WithLabelValues(previous).Set(0)
	}
	ActiveStrategy.WithLabelValues(name).Set(1)
}

// UpdateCacheHitRatio updates the hit ratio gauge of a cache.
func UpdateCacheHitRatio(cache string, ratio float64) {
	CacheHitRatio.WithLabelValues(cache).Set(ratio)
}

// RecordBacktestDuration records backtest duration.
func RecordBacktestDuration(durationSeconds float64) {
	BacktestDuration.Observe(durationSeconds)
}

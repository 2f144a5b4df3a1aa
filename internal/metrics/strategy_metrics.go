// Package metrics defines strategy-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Strategy-specific counter vectors
var (
	StrategyDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "strategy_decisions_total",
		Help:      "Total number of strategy decisions by type",
	}, []string{"strategy", "decision"})

	StrategyActionsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_bot",
		Name:      "strategy_actions_generated_total",
		Help:      "Total number of trading actions generated by strategy and order type",
	}, []string{"strategy", "order_type"})
)

// RecordStrategyDecision records a strategy decision.
// decision is one of: "evaluate", "skip", "reselect", "error"
func RecordStrategyDecision(strategy, decision string) {
	StrategyDecisionsTotal.WithLabelValues(strategy, decision).Inc()
}

// RecordStrategyAction records a generated trading action.
func RecordStrategyAction(strategy, orderType string) {
	StrategyActionsGenerated.WithLabelValues(strategy, orderType).Inc()
}

// Package logger provides strategy-specific logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StrategyLogger provides dedicated logging for strategy operations.
type StrategyLogger struct {
	*logrus.Entry
}

// NewStrategyLogger creates a new strategy logger.
func NewStrategyLogger(baseLogger *logrus.Logger) *StrategyLogger {
	return &StrategyLogger{
		Entry: baseLogger.WithField("component", "strategy"),
	}
}

// LogStrategyEvaluation logs a strategy evaluation event.
func (sl *StrategyLogger) LogStrategyEvaluation(strategyName, backtestID string, asOf time.Time, actionsGenerated int, durationMs float64) {
	sl.WithFields(logrus.Fields{
		"strategy_name":          strategyName,
		"backtest_id":            backtestID,
		"as_of":                  asOf.Format("2006-01-02"),
		"actions_generated":      actionsGenerated,
		"evaluation_duration_ms": durationMs,
	}).Info("Strategy evaluation completed")
}

// LogEvaluationSkipped logs a tick that fell before the next evaluation day.
func (sl *StrategyLogger) LogEvaluationSkipped(strategyName string, asOf, nextEvaluationDay time.Time) {
	sl.WithFields(logrus.Fields{
		"strategy_name":       strategyName,
		"as_of":               asOf.Format("2006-01-02"),
		"next_evaluation_day": nextEvaluationDay.Format("2006-01-02"),
	}).Debug("Strategy evaluation skipped")
}

// LogSymbolsSelected logs the outcome of a ranking step.
func (sl *StrategyLogger) LogSymbolsSelected(strategyName, decision string, symbols []string) {
	sl.WithFields(logrus.Fields{
		"strategy_name": strategyName,
		"decision":      decision,
		"symbols":       symbols,
		"count":         len(symbols),
	}).Info("Strategy selected symbols")
}

// LogModelFitted logs a freshly fitted PCA model.
func (sl *StrategyLogger) LogModelFitted(strategyName string, symbols, components int, expiresAt time.Time) {
	sl.WithFields(logrus.Fields{
		"strategy_name": strategyName,
		"symbols":       symbols,
		"components":    components,
		"expires_at":    expiresAt.Format("2006-01-02"),
	}).Info("PCA model fitted")
}

// LogStrategyActivation logs strategy activation.
func (sl *StrategyLogger) LogStrategyActivation(strategyName, previous, reason string) {
	sl.WithFields(logrus.Fields{
		"strategy_name": strategyName,
		"previous":      previous,
		"event_type":    "activation",
		"reason":        reason,
	}).Info("Strategy activated")
}

// LogStrategyDeactivation logs strategy deactivation.
func (sl *StrategyLogger) LogStrategyDeactivation(strategyName, next, reason string) {
	sl.WithFields(logrus.Fields{
		"strategy_name": strategyName,
		"next":          next,
		"event_type":    "deactivation",
		"reason":        reason,
	}).Info("Strategy deactivated")
}

// LogStrategyDrawdown logs drawdown events.
func (sl *StrategyLogger) LogStrategyDrawdown(strategyName string, drawdownPercent, peakEquity, currentEquity float64) {
	sl.WithFields(logrus.Fields{
		"strategy_name":    strategyName,
		"drawdown_percent": drawdownPercent,
		"peak_equity":      peakEquity,
		"current_equity":   currentEquity,
	}).Warn("Strategy drawdown recorded")
}

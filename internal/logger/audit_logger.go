// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogActionSubmitted logs an order accepted by the broker.
func (al *AuditLogger) LogActionSubmitted(actionID, symbol, orderType, quantity, status, brokerOrderID string, timestamp time.Time, simulated bool) {
	al.WithFields(logrus.Fields{
		"action_id":       actionID,
		"symbol":          symbol,
		"order_type":      orderType,
		"quantity":        quantity,
		"status":          status,
		"broker_order_id": brokerOrderID,
		"timestamp":       timestamp.Unix(),
		"simulated":       simulated,
	}).Info("Trading action submitted")
}

// LogActionFailed logs an order rejected with a non-transient error.
func (al *AuditLogger) LogActionFailed(actionID, symbol, orderType, code, message string) {
	al.WithFields(logrus.Fields{
		"action_id":  actionID,
		"symbol":     symbol,
		"order_type": orderType,
		"error_code": code,
		"message":    message,
	}).Warn("Trading action failed")
}

// LogActionDeferred logs an order left unrecorded after a transient error.
func (al *AuditLogger) LogActionDeferred(actionID, symbol, reason string) {
	al.WithFields(logrus.Fields{
		"action_id": actionID,
		"symbol":    symbol,
		"reason":    reason,
	}).Warn("Trading action deferred")
}

// LogActionFilled logs a fill received after submission.
func (al *AuditLogger) LogActionFilled(actionID, brokerOrderID, fillPrice string, executedAt time.Time) {
	al.WithFields(logrus.Fields{
		"action_id":       actionID,
		"broker_order_id": brokerOrderID,
		"fill_price":      fillPrice,
		"executed_at":     executedAt.Unix(),
	}).Info("Trading action filled")
}

// LogBacktestStateChange logs a backtest lifecycle transition.
func (al *AuditLogger) LogBacktestStateChange(backtestID, oldState, newState, details string) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"old_state":   oldState,
		"new_state":   newState,
		"details":     details,
	}).Info("Backtest state changed")
}

// LogStrategySelectionChange logs a change of the live strategy.
func (al *AuditLogger) LogStrategySelectionChange(oldStrategy, newStrategy, changedBy string) {
	al.WithFields(logrus.Fields{
		"old_strategy": oldStrategy,
		"new_strategy": newStrategy,
		"changed_by":   changedBy,
	}).Info("Strategy selection changed")
}

// LogCircuitBreakerEvent logs circuit breaker events.
func (al *AuditLogger) LogCircuitBreakerEvent(eventType, reason string, metricsSnapshot map[string]interface{}, actionTaken string) {
	al.WithFields(logrus.Fields{
		"event_type":       eventType,
		"reason":           reason,
		"metrics_snapshot": metricsSnapshot,
		"action_taken":     actionTaken,
	}).Warn("Circuit breaker event recorded")
}

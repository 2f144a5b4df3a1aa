package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// CircuitClosed means ticks run normally
	CircuitClosed CircuitState = iota
	// CircuitHalfOpen means one trial tick is allowed after the cooldown
	CircuitHalfOpen
	// CircuitOpen means ticks are halted
	CircuitOpen
)

// String returns string representation of circuit state
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	case CircuitOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines circuit breaker thresholds
type CircuitBreakerConfig struct {
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
	CooldownPeriod         time.Duration `json:"cooldown_period"`
}

// TripCallback is called when the circuit opens
type TripCallback func(reason string) error

// CircuitBreaker halts live ticks after repeated failures
type CircuitBreaker struct {
	config              CircuitBreakerConfig
	state               CircuitState
	consecutiveFailures int
	lastError           string
	openedAt            time.Time
	callbacks           []TripCallback
	now                 func() time.Time
	mu                  sync.Mutex
	logger              *logrus.Logger
	audit               *logger.AuditLogger
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, log *logrus.Logger) *CircuitBreaker {
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
		logger: log,
		audit:  logger.NewAuditLogger(log),
	}
}

// RecordFailure counts a failed tick and opens the circuit at the threshold.
// A failed trial tick reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	if err != nil {
		cb.lastError = err.Error()
	}

	cb.logger.WithFields(logrus.Fields{
		"consecutive_failures": cb.consecutiveFailures,
		"max_allowed":          cb.config.MaxConsecutiveFailures,
		"state":                cb.state.String(),
		"error":                cb.lastError,
	}).Warn("Tick failure recorded")

	switch {
	case cb.state == CircuitHalfOpen:
		cb.tripLocked("Trial tick after cooldown failed")
	case cb.consecutiveFailures >= cb.config.MaxConsecutiveFailures:
		cb.tripLocked(fmt.Sprintf(
			"Max consecutive failures exceeded (%d >= %d)",
			cb.consecutiveFailures, cb.config.MaxConsecutiveFailures,
		))
	}
}

// RecordSuccess closes the circuit and resets the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitClosed {
		cb.logger.WithField("old_state", cb.state.String()).Info("Circuit breaker closed after successful tick")
		cb.audit.LogCircuitBreakerEvent("closed", "successful tick", cb.snapshotLocked(), "resume_trading")
	}
	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.lastError = ""
}

// IsOpen reports whether ticks are halted. Once the cooldown has elapsed the
// circuit moves to half-open and lets the next tick through.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.CooldownPeriod {
		cb.state = CircuitHalfOpen
		cb.logger.Info("Circuit breaker entering half-open state after cooldown")
	}
	return cb.state == CircuitOpen
}

// GetState returns current circuit state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// ConsecutiveFailures returns the current failure streak
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.consecutiveFailures
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.lastError = ""

	cb.logger.WithFields(logrus.Fields{
		"old_state": oldState.String(),
		"new_state": cb.state.String(),
	}).Info("Circuit breaker manually reset")
}

// RegisterTripCallback registers a callback run when the circuit opens
func (cb *CircuitBreaker) RegisterTripCallback(callback TripCallback) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.callbacks = append(cb.callbacks, callback)
}

func (cb *CircuitBreaker) tripLocked(reason string) {
	oldState := cb.state
	cb.state = CircuitOpen
	cb.openedAt = cb.now()
	metrics.RecordCircuitBreakerTrip()

	cb.logger.WithFields(logrus.Fields{
		"old_state":            oldState.String(),
		"new_state":            cb.state.String(),
		"reason":               reason,
		"consecutive_failures": cb.consecutiveFailures,
		"cooldown_period":      cb.config.CooldownPeriod,
	}).Error("Circuit breaker tripped, halting trading ticks")
	cb.audit.LogCircuitBreakerEvent("tripped", reason, cb.snapshotLocked(), "halt_trading")

	for i, callback := range cb.callbacks {
		if err := callback(reason); err != nil {
			cb.logger.WithFields(logrus.Fields{
				"callback_index": i,
				"error":          err.Error(),
			}).Error("Circuit breaker callback failed")
		}
	}
}

func (cb *CircuitBreaker) snapshotLocked() map[string]interface{} {
	return map[string]interface{}{
		"consecutive_failures": cb.consecutiveFailures,
		"last_error":           cb.lastError,
		"state":                cb.state.String(),
	}
}

// Package events publishes domain events about trading actions and backtests.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/models"
)

// Event types
const (
	TypeActionExecuted   = "trading_action.executed"
	TypeBacktestFinished = "backtest.finished"
)

// Envelope is the serialized form of every event
type Envelope struct {
	Type        string      `json:"type"`
	PublishedAt time.Time   `json:"published_at"`
	Payload     interface{} `json:"payload"`
}

// Publisher emits domain events
type Publisher interface {
	ActionExecuted(ctx context.Context, action *models.TradingAction) error
	BacktestFinished(ctx context.Context, backtest *models.Backtest) error
	Close() error
}

// NewPublisher returns a Kafka publisher when events are enabled, otherwise a no-op one
func NewPublisher(cfg config.EventsConfig, logger *logrus.Logger) Publisher {
	if !cfg.Enabled {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger)
}

// NoopPublisher drops every event
type NoopPublisher struct{}

// ActionExecuted does nothing
func (NoopPublisher) ActionExecuted(ctx context.Context, action *models.TradingAction) error {
	return nil
}

// BacktestFinished does nothing
func (NoopPublisher) BacktestFinished(ctx context.Context, backtest *models.Backtest) error {
	return nil
}

// Close does nothing
func (NoopPublisher) Close() error {
	return nil
}

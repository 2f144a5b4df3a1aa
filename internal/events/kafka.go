package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
)

// MessageWriter is the part of kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON envelopes to Kafka topics keyed by record id
type KafkaPublisher struct {
	writer         MessageWriter
	actionsTopic   string
	backtestsTopic string
	logger         *logrus.Entry
	now            func() time.Time
}

// NewKafkaPublisher creates a publisher over a kafka.Writer for cfg.Brokers
func NewKafkaPublisher(cfg config.EventsConfig, logger *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 100 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(writer, cfg.ActionsTopic, cfg.BacktestsTopic, logger)
}

// NewKafkaPublisherWithWriter creates a publisher over an existing writer
func NewKafkaPublisherWithWriter(writer MessageWriter, actionsTopic, backtestsTopic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:         writer,
		actionsTopic:   actionsTopic,
		backtestsTopic: backtestsTopic,
		logger:         logger.WithField("component", "events"),
		now:            time.Now,
	}
}

// ActionExecuted publishes the outcome of an executed action
func (p *KafkaPublisher) ActionExecuted(ctx context.Context, action *models.TradingAction) error {
	return p.publish(ctx, p.actionsTopic, action.ID.String(), TypeActionExecuted, action)
}

// BacktestFinished publishes a backtest that reached a terminal state
func (p *KafkaPublisher) BacktestFinished(ctx context.Context, backtest *models.Backtest) error {
	return p.publish(ctx, p.backtestsTopic, backtest.ID.String(), TypeBacktestFinished, backtest)
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	value, err := json.Marshal(Envelope{Type: eventType, PublishedAt: p.now().UTC(), Payload: payload})
	if err != nil {
		metrics.RecordEventPublished(topic, "failure")
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		metrics.RecordEventPublished(topic, "failure")
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"type":  eventType,
			"key":   key,
		}).Warn("Failed to publish event")
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	metrics.RecordEventPublished(topic, "success")
	return nil
}

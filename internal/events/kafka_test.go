package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/models"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestKafkaPublisher_ActionExecuted(t *testing.T) {
	writer := &mockWriter{}
	var written []kafka.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]kafka.Message) }).
		Return(nil)

	publisher := NewKafkaPublisherWithWriter(writer, "actions", "backtests", quietLogger())
	publisher.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	action := models.NewMarketAction(uuid.New(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "AAPL",
		decimal.NewFromInt(3), models.OrderTypeMarketBuy)
	action.Status = models.ActionStatusFilled

	require.NoError(t, publisher.ActionExecuted(context.Background(), action))
	require.Len(t, written, 1)
	assert.Equal(t, "actions", written[0].Topic)
	assert.Equal(t, action.ID.String(), string(written[0].Key))

	var envelope struct {
		Type        string               `json:"type"`
		PublishedAt time.Time            `json:"published_at"`
		Payload     models.TradingAction `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(written[0].Value, &envelope))
	assert.Equal(t, TypeActionExecuted, envelope.Type)
	assert.Equal(t, models.ActionStatusFilled, envelope.Payload.Status)
	assert.Equal(t, models.TradingSymbol("AAPL"), envelope.Payload.Symbol)
	writer.AssertExpectations(t)
}

func TestKafkaPublisher_BacktestFinished(t *testing.T) {
	writer := &mockWriter{}
	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 && msgs[0].Topic == "backtests"
	})).Return(nil)

	publisher := NewKafkaPublisherWithWriter(writer, "actions", "backtests", quietLogger())
	backtest := &models.Backtest{ID: uuid.New(), State: models.BacktestStateFinished}

	require.NoError(t, publisher.BacktestFinished(context.Background(), backtest))
	writer.AssertExpectations(t)
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	writer := &mockWriter{}
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	publisher := NewKafkaPublisherWithWriter(writer, "actions", "backtests", quietLogger())
	err := publisher.BacktestFinished(context.Background(), &models.Backtest{ID: uuid.New()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestKafkaPublisher_Close(t *testing.T) {
	writer := &mockWriter{}
	writer.On("Close").Return(nil)

	publisher := NewKafkaPublisherWithWriter(writer, "actions", "backtests", quietLogger())
	require.NoError(t, publisher.Close())
	writer.AssertExpectations(t)
}

func TestNewPublisher(t *testing.T) {
	assert.IsType(t, NoopPublisher{}, NewPublisher(config.EventsConfig{}, quietLogger()))

	publisher := NewPublisher(config.EventsConfig{
		Enabled:        true,
		Brokers:        []string{"localhost:9092"},
		ActionsTopic:   "actions",
		BacktestsTopic: "backtests",
	}, quietLogger())
	assert.IsType(t, &KafkaPublisher{}, publisher)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.ActionExecuted(context.Background(), &models.TradingAction{}))
	assert.NoError(t, p.BacktestFinished(context.Background(), &models.Backtest{}))
	assert.NoError(t, p.Close())
}

package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	args := m.Called(ctx, req)
	if res := args.Get(0); res != nil {
		return res.(*broker.OrderResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBroker) GetAssets(ctx context.Context) (*models.AssetsSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.AssetsSnapshot), args.Error(1)
}

func (m *mockBroker) GetTradableAssets(ctx context.Context) ([]broker.TradableAsset, error) {
	args := m.Called(ctx)
	return args.Get(0).([]broker.TradableAsset), args.Error(1)
}

func (m *mockBroker) IsOpenWithin(ctx context.Context, now time.Time, window time.Duration) (bool, error) {
	args := m.Called(ctx, now, window)
	return args.Bool(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) ActionExecuted(ctx context.Context, action *models.TradingAction) error {
	return m.Called(ctx, action).Error(0)
}

func (m *mockPublisher) BacktestFinished(ctx context.Context, backtest *models.Backtest) error {
	return m.Called(ctx, backtest).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

type failingActions struct {
	repository.TradingActionRepository
}

func (failingActions) Create(ctx context.Context, action *models.TradingAction) error {
	return errors.New("connection reset")
}

var testDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func buyAction(symbol string, qty float64) *models.TradingAction {
	return models.NewMarketAction(uuid.New(), testDay, models.TradingSymbol(symbol),
		decimal.NewFromFloat(qty), models.OrderTypeMarketBuy)
}

func TestExecute_Submitted(t *testing.T) {
	client := &mockBroker{}
	action := buyAction("AAPL", 2)
	client.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req broker.OrderRequest) bool {
		return req.ClientOrderID == action.ID.String() && req.Symbol == "AAPL"
	})).Return(&broker.OrderResult{
		BrokerOrderID: "ord-1",
		Status:        models.ActionStatusSubmitted,
		SubmittedAt:   testDay,
	}, nil)

	exec := NewExecutor(client, repository.NewMemoryRepositories().TradingAction, nil, false, testLogger())
	result, err := exec.Execute(context.Background(), action)

	require.NoError(t, err)
	assert.NotSame(t, action, result)
	assert.Equal(t, models.ActionStatusSubmitted, result.Status)
	require.NotNil(t, result.BrokerOrderID)
	assert.Equal(t, "ord-1", *result.BrokerOrderID)
	assert.Nil(t, result.ExecutedAt)
	assert.Equal(t, models.ActionStatusNew, action.Status)
	client.AssertExpectations(t)
}

func TestExecute_SimulatedFill(t *testing.T) {
	client := &mockBroker{}
	price := decimal.NewFromFloat(101.5)
	filledAt := testDay
	client.On("SubmitOrder", mock.Anything, mock.Anything).Return(&broker.OrderResult{
		BrokerOrderID: "sim-000001",
		Status:        models.ActionStatusFilled,
		SubmittedAt:   testDay,
		FilledAt:      &filledAt,
		FillPrice:     &price,
		FilledQty:     decimal.NewFromInt(2),
	}, nil)

	exec := NewExecutor(client, repository.NewMemoryRepositories().TradingAction, nil, true, testLogger())
	result, err := exec.Execute(context.Background(), buyAction("AAPL", 2))

	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusFilled, result.Status)
	require.NotNil(t, result.ExecutedAt)
	assert.True(t, result.ExecutedAt.Equal(testDay))
	require.NotNil(t, result.AverageFillPrice)
	assert.True(t, result.AverageFillPrice.Equal(price))
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name        string
		action      *models.TradingAction
		submitErr   error
		wantCode    string
		wantMessage string
		wantSubmit  bool
	}{
		{
			name:        "zero quantity",
			action:      buyAction("AAPL", 0),
			wantCode:    broker.CodeBadRequest,
			wantMessage: "Quantity: must be greater than 0",
		},
		{
			name:        "missing symbol",
			action:      buyAction("", 1),
			wantCode:    broker.CodeBadRequest,
			wantMessage: "Symbol: is required",
		},
		{
			name:        "insufficient buying power",
			action:      buyAction("AAPL", 1),
			submitErr:   &broker.APIError{StatusCode: http.StatusForbidden, Code: broker.APICodeForbidden, Message: "insufficient buying power"},
			wantCode:    broker.CodeInsufficientFunds,
			wantMessage: "insufficient buying power",
			wantSubmit:  true,
		},
		{
			name:        "network failure",
			action:      buyAction("AAPL", 1),
			submitErr:   errors.New("dial tcp: connection refused"),
			wantCode:    broker.CodeCallFailed,
			wantMessage: "Call to Broker API failed: dial tcp: connection refused",
			wantSubmit:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockBroker{}
			if tt.wantSubmit {
				client.On("SubmitOrder", mock.Anything, mock.Anything).Return(nil, tt.submitErr)
			}

			exec := NewExecutor(client, repository.NewMemoryRepositories().TradingAction, nil, false, testLogger())
			result, err := exec.Execute(context.Background(), tt.action)

			require.NoError(t, err)
			assert.Equal(t, models.ActionStatusFailed, result.Status)
			require.NotNil(t, result.Error)
			assert.Equal(t, tt.wantCode, result.Error.Code)
			assert.Equal(t, tt.wantMessage, result.Error.Message)
			if !tt.wantSubmit {
				client.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestExecute_RateLimitedIsTransient(t *testing.T) {
	client := &mockBroker{}
	client.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(nil, &broker.APIError{StatusCode: http.StatusTooManyRequests, Message: "too many requests"})

	action := buyAction("AAPL", 1)
	exec := NewExecutor(client, repository.NewMemoryRepositories().TradingAction, nil, false, testLogger())
	result, err := exec.Execute(context.Background(), action)

	require.Error(t, err)
	assert.True(t, broker.IsTransient(err))
	assert.Same(t, action, result)
	assert.Equal(t, models.ActionStatusNew, result.Status)
	assert.Nil(t, result.Error)
}

func TestExecuteBatch_RecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()
	client := &mockBroker{}
	publisher := &mockPublisher{}

	first := buyAction("AAPL", 1)
	limited := buyAction("MSFT", 1)
	rejected := buyAction("TSLA", 1)

	client.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req broker.OrderRequest) bool {
		return req.Symbol == "AAPL"
	})).Return(&broker.OrderResult{BrokerOrderID: "ord-1", Status: models.ActionStatusSubmitted}, nil)
	client.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req broker.OrderRequest) bool {
		return req.Symbol == "MSFT"
	})).Return(nil, &broker.APIError{StatusCode: http.StatusTooManyRequests})
	client.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req broker.OrderRequest) bool {
		return req.Symbol == "TSLA"
	})).Return(nil, &broker.APIError{StatusCode: http.StatusUnprocessableEntity, Code: broker.APICodeUnprocessable, Message: "asset TSLA not found"})
	publisher.On("ActionExecuted", mock.Anything, mock.Anything).Return(nil).Twice()

	taskID := uuid.New()
	exec := NewExecutor(client, repos.TradingAction, publisher, false, testLogger())
	executed, err := exec.ExecuteBatch(ctx, taskID, []*models.TradingAction{first, limited, rejected})

	require.NoError(t, err)
	require.Len(t, executed, 2)
	assert.Equal(t, models.ActionStatusSubmitted, executed[0].Status)
	assert.Equal(t, models.ActionStatusFailed, executed[1].Status)
	assert.Equal(t, broker.CodeAssetNotFound, executed[1].Error.Code)

	stored, err := repos.TradingAction.ListByTask(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, first.ID, stored[0].ID)
	assert.Equal(t, rejected.ID, stored[1].ID)

	_, err = repos.TradingAction.GetByID(ctx, limited.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Nil(t, first.TaskID)

	client.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestExecuteBatch_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockBroker{}
	exec := NewExecutor(client, repository.NewMemoryRepositories().TradingAction, nil, true, testLogger())
	executed, err := exec.ExecuteBatch(ctx, uuid.New(), []*models.TradingAction{buyAction("AAPL", 1)})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, executed)
	client.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestExecuteBatch_PersistenceFailure(t *testing.T) {
	client := &mockBroker{}
	client.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(&broker.OrderResult{BrokerOrderID: "ord-1", Status: models.ActionStatusSubmitted}, nil)

	exec := NewExecutor(client, failingActions{}, nil, false, testLogger())
	_, err := exec.ExecuteBatch(context.Background(), uuid.New(), []*models.TradingAction{buyAction("AAPL", 1)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record action")
}

func TestExecuteBatch_PublishFailureIsNotFatal(t *testing.T) {
	client := &mockBroker{}
	publisher := &mockPublisher{}
	client.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(&broker.OrderResult{BrokerOrderID: "ord-1", Status: models.ActionStatusSubmitted}, nil)
	publisher.On("ActionExecuted", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))

	exec := NewExecutor(client, repository.NewMemoryRepositories().TradingAction, publisher, false, testLogger())
	executed, err := exec.ExecuteBatch(context.Background(), uuid.New(), []*models.TradingAction{buyAction("AAPL", 1)})

	require.NoError(t, err)
	assert.Len(t, executed, 1)
}

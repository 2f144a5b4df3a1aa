package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/trading-bot/internal/models"
)

// StrategyStateRepository stores strategy state per variant and backtest.
// A nil backtestID addresses the live partition.
type StrategyStateRepository interface {
	Load(ctx context.Context, variant string, backtestID *uuid.UUID) (json.RawMessage, error)
	Save(ctx context.Context, variant string, backtestID *uuid.UUID, state json.RawMessage) error
	Delete(ctx context.Context, variant string, backtestID *uuid.UUID) error
}

// TradingActionRepository defines the interface for trading action data access
type TradingActionRepository interface {
	Create(ctx context.Context, action *models.TradingAction) error
	UpdateOutcome(ctx context.Context, action *models.TradingAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TradingAction, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TradingAction, error)
	GetByBrokerOrderID(ctx context.Context, brokerOrderID string) (*models.TradingAction, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TradingAction, error)
	ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.TradingAction, error)
	ListByTimeRange(ctx context.Context, start, end time.Time) ([]*models.TradingAction, error)
}

// TradingTaskRepository defines the interface for trading task data access
type TradingTaskRepository interface {
	Create(ctx context.Context, task *models.TradingTask) error
	Finish(ctx context.Context, id uuid.UUID, completion models.TradingTaskCompletion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TradingTask, error)
	ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.TradingTask, error)
}

// AssetsSnapshotRepository defines the interface for assets snapshot data access
type AssetsSnapshotRepository interface {
	Create(ctx context.Context, snapshot *models.AssetsSnapshot) error
	ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.AssetsSnapshot, error)
	ListByTimeRange(ctx context.Context, backtestID *uuid.UUID, start, end time.Time) ([]*models.AssetsSnapshot, error)
	Earliest(ctx context.Context, backtestID *uuid.UUID) (*models.AssetsSnapshot, error)
}

// BacktestRepository defines the interface for backtest data access
type BacktestRepository interface {
	Create(ctx context.Context, backtest *models.Backtest) error
	Finish(ctx context.Context, id uuid.UUID, completion models.BacktestCompletion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Backtest, error)
	List(ctx context.Context, limit int) ([]*models.Backtest, error)
}

// StrategySelectionRepository persists the strategy used for live trading
type StrategySelectionRepository interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, name, changedBy string) error
}

func partitionKey(backtestID *uuid.UUID) string {
	if backtestID == nil {
		return "live"
	}
	return backtestID.String()
}

package repository

import (
	"context"
	"fmt"

	"github.com/yourusername/trading-bot/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	StrategyState     StrategyStateRepository
	TradingAction     TradingActionRepository
	TradingTask       TradingTaskRepository
	AssetsSnapshot    AssetsSnapshotRepository
	Backtest          BacktestRepository
	StrategySelection StrategySelectionRepository

	transact func(ctx context.Context, fn func(context.Context) error) error
}

// WithTransaction runs fn so that every repository call made with the
// context it receives commits or rolls back together. In-memory
// repositories run fn directly.
func (r *Repositories) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if r.transact == nil {
		return fn(ctx)
	}
	return r.transact(ctx, fn)
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		StrategyState:     NewPostgresStrategyStateRepository(db),
		TradingAction:     NewPostgresTradingActionRepository(db),
		TradingTask:       NewPostgresTradingTaskRepository(db),
		AssetsSnapshot:    NewPostgresAssetsSnapshotRepository(db),
		Backtest:          NewPostgresBacktestRepository(db),
		StrategySelection: NewPostgresStrategySelectionRepository(db),
		transact:          db.WithTransaction,
	}, nil
}

// NewMemoryRepositories creates in-memory implementations of every repository
func NewMemoryRepositories() *Repositories {
	tasks := NewMemoryTradingTaskRepository()
	return &Repositories{
		StrategyState:     NewMemoryStrategyStateRepository(),
		TradingAction:     NewMemoryTradingActionRepository(tasks),
		TradingTask:       tasks,
		AssetsSnapshot:    NewMemoryAssetsSnapshotRepository(),
		Backtest:          NewMemoryBacktestRepository(),
		StrategySelection: NewMemoryStrategySelectionRepository(),
	}
}

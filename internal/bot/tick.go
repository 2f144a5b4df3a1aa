// Package bot runs the trading decision cycle, both on the live schedule and
// for simulated days of a backtest.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/events"
	"github.com/yourusername/trading-bot/internal/executor"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

// openWindow is how far ahead the exchange must open for a tick to trade
const openWindow = 24 * time.Hour

// TickRequest describes one run of the decision cycle
type TickRequest struct {
	AsOf             time.Time
	BacktestID       *uuid.UUID
	Strategy         string
	Broker           broker.Client
	Market           datasource.Provider
	IDs              strategy.IDGenerator
	Clock            Clock
	InvestingEnabled bool
	UsePredictor     bool
	// Models replaces the executor's model cache for this tick
	Models *pca.ModelCache
}

func (r TickRequest) mode() string {
	if r.BacktestID != nil {
		return "backtest"
	}
	return "live"
}

// TickResult is what a tick recorded
type TickResult struct {
	Task     *models.TradingTask
	Actions  []*models.TradingAction
	Snapshot *models.AssetsSnapshot
}

// TickExecutor runs trading tasks. It holds no per-run state and is shared
// by the live loop and every backtest.
type TickExecutor struct {
	repos          *repository.Repositories
	selector       *strategy.Selector
	models         *pca.ModelCache
	universe       []models.TradingSymbol
	publisher      events.Publisher
	logger         *logrus.Logger
	strategyLogger *logger.StrategyLogger
}

// NewTickExecutor creates a tick executor. An empty universe trades every
// asset the broker offers.
func NewTickExecutor(
	repos *repository.Repositories,
	selector *strategy.Selector,
	modelCache *pca.ModelCache,
	universe []models.TradingSymbol,
	publisher events.Publisher,
	log *logrus.Logger,
) *TickExecutor {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &TickExecutor{
		repos:          repos,
		selector:       selector,
		models:         modelCache,
		universe:       universe,
		publisher:      publisher,
		logger:         log,
		strategyLogger: logger.NewStrategyLogger(log),
	}
}

// Execute runs a single trading task. Failures are recorded on the task and
// returned.
func (t *TickExecutor) Execute(ctx context.Context, req TickRequest) (*TickResult, error) {
	start := time.Now()
	if req.IDs == nil {
		req.IDs = strategy.RandomIDs{}
	}
	if req.Clock == nil {
		req.Clock = SystemClock{}
	}

	task := &models.TradingTask{
		ID:           req.IDs.NewID(),
		StartedAt:    req.Clock.Now(),
		State:        models.TradingTaskStateRunning,
		StateDetails: models.TaskDetailsRunning,
		BacktestID:   req.BacktestID,
	}
	if err := t.repos.TradingTask.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create trading task: %w", err)
	}
	result := &TickResult{Task: task}

	state, details, runErr := t.run(ctx, req, result)
	if runErr != nil {
		state, details = models.TradingTaskStateError, TaskErrorDetails(runErr)
	}

	completion := models.TradingTaskCompletion{FinishedAt: req.Clock.Now(), State: state, Details: details}
	if err := t.repos.TradingTask.Finish(context.WithoutCancel(ctx), task.ID, completion); err != nil {
		t.logger.WithError(err).WithField("trading_task_id", task.ID).Error("Failed to finish trading task")
		if runErr == nil {
			runErr = fmt.Errorf("failed to finish trading task: %w", err)
		}
	}
	finishedAt := completion.FinishedAt
	task.FinishedAt = &finishedAt
	task.State = state
	task.StateDetails = details

	metrics.RecordTradingTask(req.mode(), string(state), time.Since(start).Seconds())
	fields := logrus.Fields{
		"trading_task_id": task.ID,
		"as_of":           req.AsOf.Format("2006-01-02"),
		"strategy":        req.Strategy,
		"state":           state,
		"actions":         len(result.Actions),
	}
	if req.BacktestID != nil {
		fields["backtest_id"] = *req.BacktestID
	}
	if runErr != nil {
		t.logger.WithFields(fields).WithError(runErr).Error("Trading task failed")
		return result, runErr
	}
	if req.BacktestID != nil {
		t.logger.WithFields(fields).Debug("Trading task finished")
	} else {
		t.logger.WithFields(fields).Info("Trading task finished")
	}
	return result, nil
}

func (t *TickExecutor) run(ctx context.Context, req TickRequest, result *TickResult) (models.TradingTaskState, string, error) {
	if !req.InvestingEnabled {
		if err := t.recordSnapshot(ctx, req, result); err != nil {
			return "", "", err
		}
		return models.TradingTaskStateConfigDisabled, models.TaskDetailsConfigDisabled, nil
	}

	open, err := req.Broker.IsOpenWithin(ctx, req.AsOf, openWindow)
	if err != nil {
		return "", "", fmt.Errorf("failed to check exchange hours: %w", err)
	}
	if !open {
		if err := t.recordSnapshot(ctx, req, result); err != nil {
			return "", "", err
		}
		return models.TradingTaskStateExchangeClosed, models.TaskDetailsExchangeClosed, nil
	}

	evaluator, err := t.selector.Lookup(req.Strategy)
	if err != nil {
		return "", "", err
	}
	assets, err := req.Broker.GetAssets(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to get assets: %w", err)
	}
	universe, err := t.tradableUniverse(ctx, req.Broker)
	if err != nil {
		return "", "", err
	}
	state, err := LoadState(ctx, t.repos.StrategyState, evaluator, req.BacktestID)
	if err != nil {
		return "", "", err
	}

	in := strategy.Input{
		AsOf:         req.AsOf,
		BacktestID:   req.BacktestID,
		Assets:       assets,
		Universe:     universe,
		Market:       req.Market,
		Actions:      t.repos.TradingAction,
		IDs:          req.IDs,
		Models:       t.modelCache(req),
		UsePredictor: req.UsePredictor,
	}

	evalStart := time.Now()
	next, actions, err := evaluator.Evaluate(ctx, in, state)
	if err != nil {
		return "", "", fmt.Errorf("strategy %s evaluation failed: %w", evaluator.Name(), err)
	}
	elapsed := time.Since(evalStart)
	metrics.RecordStrategyEvaluation(elapsed.Seconds())
	metrics.RecordStrategySignals(len(actions))
	for _, action := range actions {
		metrics.RecordStrategyAction(evaluator.Name(), string(action.OrderType))
	}
	backtestID := ""
	if req.BacktestID != nil {
		backtestID = req.BacktestID.String()
	}
	t.strategyLogger.LogStrategyEvaluation(evaluator.Name(), backtestID, req.AsOf, len(actions), float64(elapsed.Microseconds())/1000)

	if err := SaveState(ctx, t.repos.StrategyState, evaluator.Name(), req.BacktestID, next); err != nil {
		return "", "", err
	}

	exec := executor.NewExecutor(req.Broker, t.repos.TradingAction, t.publisher, req.BacktestID != nil, t.logger)
	executed, err := exec.ExecuteBatch(ctx, result.Task.ID, actions)
	result.Actions = executed
	if err != nil {
		return "", "", err
	}

	if err := t.recordSnapshot(ctx, req, result); err != nil {
		return "", "", err
	}
	return models.TradingTaskStateSuccess, models.TaskDetailsSuccess, nil
}

// modelCache picks the cache a tick fits into. Simulated ticks never share
// the executor's cache and fit synchronously without one.
func (t *TickExecutor) modelCache(req TickRequest) *pca.ModelCache {
	if req.Models != nil {
		return req.Models
	}
	if req.BacktestID != nil {
		return nil
	}
	return t.models
}

// tradableUniverse intersects the configured symbols with the assets the
// broker currently allows trading
func (t *TickExecutor) tradableUniverse(ctx context.Context, client broker.Client) ([]models.TradingSymbol, error) {
	assets, err := client.GetTradableAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tradable assets: %w", err)
	}
	tradable := make(map[models.TradingSymbol]struct{}, len(assets))
	for _, a := range assets {
		if a.Tradable {
			tradable[a.Symbol] = struct{}{}
		}
	}

	var universe []models.TradingSymbol
	if len(t.universe) == 0 {
		universe = make([]models.TradingSymbol, 0, len(tradable))
		for s := range tradable {
			universe = append(universe, s)
		}
	} else {
		for _, s := range t.universe {
			if _, ok := tradable[s]; ok {
				universe = append(universe, s)
			}
		}
	}
	return models.SortSymbols(universe), nil
}

func (t *TickExecutor) recordSnapshot(ctx context.Context, req TickRequest, result *TickResult) error {
	assets, err := req.Broker.GetAssets(ctx)
	if err != nil {
		return fmt.Errorf("failed to get assets: %w", err)
	}

	snapshot := *assets
	snapshot.ID = req.IDs.NewID()
	snapshot.CreatedAt = req.AsOf
	snapshot.BacktestID = req.BacktestID
	if err := t.repos.AssetsSnapshot.Create(ctx, &snapshot); err != nil {
		return fmt.Errorf("failed to record assets snapshot: %w", err)
	}
	result.Snapshot = &snapshot

	if req.BacktestID == nil {
		metrics.UpdateAccount(snapshot.Equity.InexactFloat64(), snapshot.Cash.Available.InexactFloat64())
	}
	return nil
}

// LoadState reads the persisted state of evaluator for a partition. A
// missing record yields a fresh state.
func LoadState(ctx context.Context, states repository.StrategyStateRepository, evaluator strategy.Evaluator, backtestID *uuid.UUID) (strategy.State, error) {
	state := evaluator.NewState()
	raw, err := states.Load(ctx, evaluator.Name(), backtestID)
	if errors.Is(err, models.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s state: %w", evaluator.Name(), err)
	}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", evaluator.Name(), err)
	}
	return state, nil
}

// SaveState persists the state of variant for a partition
func SaveState(ctx context.Context, states repository.StrategyStateRepository, variant string, backtestID *uuid.UUID, state strategy.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode %s state: %w", variant, err)
	}
	if err := states.Save(ctx, variant, backtestID, raw); err != nil {
		return fmt.Errorf("failed to save %s state: %w", variant, err)
	}
	return nil
}

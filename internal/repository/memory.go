package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/trading-bot/internal/models"
)

// MemoryStrategyStateRepository keeps strategy state in memory
type MemoryStrategyStateRepository struct {
	mu     sync.RWMutex
	states map[string]json.RawMessage
}

// NewMemoryStrategyStateRepository creates an empty in-memory state store
func NewMemoryStrategyStateRepository() *MemoryStrategyStateRepository {
	return &MemoryStrategyStateRepository{states: make(map[string]json.RawMessage)}
}

func stateKey(variant string, backtestID *uuid.UUID) string {
	return variant + "|" + partitionKey(backtestID)
}

// Load returns a copy of the stored state document
func (r *MemoryStrategyStateRepository) Load(ctx context.Context, variant string, backtestID *uuid.UUID) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[stateKey(variant, backtestID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return append(json.RawMessage(nil), state...), nil
}

// Save stores a copy of the state document
func (r *MemoryStrategyStateRepository) Save(ctx context.Context, variant string, backtestID *uuid.UUID, state json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[stateKey(variant, backtestID)] = append(json.RawMessage(nil), state...)
	return nil
}

// Delete removes the state document
func (r *MemoryStrategyStateRepository) Delete(ctx context.Context, variant string, backtestID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, stateKey(variant, backtestID))
	return nil
}

// MemoryTradingActionRepository keeps trading actions in insertion order
type MemoryTradingActionRepository struct {
	mu      sync.RWMutex
	tasks   TradingTaskRepository
	order   []uuid.UUID
	actions map[uuid.UUID]*models.TradingAction
}

// NewMemoryTradingActionRepository creates an in-memory action store. Tasks
// resolve the backtest an action belongs to.
func NewMemoryTradingActionRepository(tasks TradingTaskRepository) *MemoryTradingActionRepository {
	return &MemoryTradingActionRepository{
		tasks:   tasks,
		actions: make(map[uuid.UUID]*models.TradingAction),
	}
}

// Create stores a copy of the action
func (r *MemoryTradingActionRepository) Create(ctx context.Context, action *models.TradingAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[action.ID]; exists {
		return models.ErrDuplicateKey
	}
	r.actions[action.ID] = action.Clone()
	r.order = append(r.order, action.ID)
	return nil
}

// UpdateOutcome overwrites the outcome fields of a stored action
func (r *MemoryTradingActionRepository) UpdateOutcome(ctx context.Context, action *models.TradingAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.actions[action.ID]
	if !ok {
		return models.ErrNotFound
	}
	updated := action.Clone()
	stored.Status = updated.Status
	stored.ExecutedAt = updated.ExecutedAt
	stored.BrokerOrderID = updated.BrokerOrderID
	stored.AverageFillPrice = updated.AverageFillPrice
	stored.Error = updated.Error
	return nil
}

// GetByID returns a copy of the action
func (r *MemoryTradingActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TradingAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return action.Clone(), nil
}

// GetByIDs returns copies of the known actions among ids
func (r *MemoryTradingActionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TradingAction, error) {
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return r.filter(func(a *models.TradingAction) bool {
		_, ok := wanted[a.ID]
		return ok
	}), nil
}

// GetByBrokerOrderID returns the action submitted as brokerOrderID
func (r *MemoryTradingActionRepository) GetByBrokerOrderID(ctx context.Context, brokerOrderID string) (*models.TradingAction, error) {
	found := r.filter(func(a *models.TradingAction) bool {
		return a.BrokerOrderID != nil && *a.BrokerOrderID == brokerOrderID
	})
	if len(found) == 0 {
		return nil, models.ErrNotFound
	}
	return found[0], nil
}

// ListByTask returns the actions of a task
func (r *MemoryTradingActionRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TradingAction, error) {
	return r.filter(func(a *models.TradingAction) bool {
		return a.TaskID != nil && *a.TaskID == taskID
	}), nil
}

// ListByBacktest returns the actions whose task belongs to backtestID
func (r *MemoryTradingActionRepository) ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.TradingAction, error) {
	tasks, err := r.tasks.ListByBacktest(ctx, backtestID)
	if err != nil {
		return nil, err
	}
	taskIDs := make(map[uuid.UUID]struct{}, len(tasks))
	for _, t := range tasks {
		taskIDs[t.ID] = struct{}{}
	}
	return r.filter(func(a *models.TradingAction) bool {
		if a.TaskID == nil {
			return false
		}
		_, ok := taskIDs[*a.TaskID]
		return ok
	}), nil
}

// ListByTimeRange returns actions created within [start, end]
func (r *MemoryTradingActionRepository) ListByTimeRange(ctx context.Context, start, end time.Time) ([]*models.TradingAction, error) {
	return r.filter(func(a *models.TradingAction) bool {
		return !a.CreatedAt.Before(start) && !a.CreatedAt.After(end)
	}), nil
}

func (r *MemoryTradingActionRepository) filter(keep func(*models.TradingAction) bool) []*models.TradingAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.TradingAction
	for _, id := range r.order {
		if a := r.actions[id]; keep(a) {
			result = append(result, a.Clone())
		}
	}
	return result
}

// MemoryTradingTaskRepository keeps trading tasks in memory
type MemoryTradingTaskRepository struct {
	mu    sync.RWMutex
	order []uuid.UUID
	tasks map[uuid.UUID]*models.TradingTask
}

// NewMemoryTradingTaskRepository creates an empty in-memory task store
func NewMemoryTradingTaskRepository() *MemoryTradingTaskRepository {
	return &MemoryTradingTaskRepository{tasks: make(map[uuid.UUID]*models.TradingTask)}
}

// Create stores a copy of the task
func (r *MemoryTradingTaskRepository) Create(ctx context.Context, task *models.TradingTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return models.ErrDuplicateKey
	}
	c := *task
	r.tasks[task.ID] = &c
	r.order = append(r.order, task.ID)
	return nil
}

// Finish records the final state of a task once
func (r *MemoryTradingTaskRepository) Finish(ctx context.Context, id uuid.UUID, completion models.TradingTaskCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return models.ErrNotFound
	}
	if task.FinishedAt != nil {
		return models.ErrAlreadyFinished
	}
	finishedAt := completion.FinishedAt
	task.FinishedAt = &finishedAt
	task.State = completion.State
	task.StateDetails = completion.Details
	return nil
}

// GetByID returns a copy of the task
func (r *MemoryTradingTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TradingTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *task
	return &c, nil
}

// ListByBacktest returns the tasks of a partition in creation order
func (r *MemoryTradingTaskRepository) ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.TradingTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.TradingTask
	for _, id := range r.order {
		task := r.tasks[id]
		if samePartition(task.BacktestID, backtestID) {
			c := *task
			result = append(result, &c)
		}
	}
	return result, nil
}

// MemoryAssetsSnapshotRepository keeps snapshots in memory
type MemoryAssetsSnapshotRepository struct {
	mu        sync.RWMutex
	snapshots []*models.AssetsSnapshot
}

// NewMemoryAssetsSnapshotRepository creates an empty in-memory snapshot store
func NewMemoryAssetsSnapshotRepository() *MemoryAssetsSnapshotRepository {
	return &MemoryAssetsSnapshotRepository{}
}

// Create stores a copy of the snapshot
func (r *MemoryAssetsSnapshotRepository) Create(ctx context.Context, snapshot *models.AssetsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, copySnapshot(snapshot))
	sort.SliceStable(r.snapshots, func(i, j int) bool {
		return r.snapshots[i].CreatedAt.Before(r.snapshots[j].CreatedAt)
	})
	return nil
}

// ListByBacktest returns the snapshots of a partition, oldest first
func (r *MemoryAssetsSnapshotRepository) ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.AssetsSnapshot, error) {
	return r.filter(func(s *models.AssetsSnapshot) bool {
		return samePartition(s.BacktestID, backtestID)
	}), nil
}

// ListByTimeRange returns the snapshots of a partition within [start, end]
func (r *MemoryAssetsSnapshotRepository) ListByTimeRange(ctx context.Context, backtestID *uuid.UUID, start, end time.Time) ([]*models.AssetsSnapshot, error) {
	return r.filter(func(s *models.AssetsSnapshot) bool {
		return samePartition(s.BacktestID, backtestID) && !s.CreatedAt.Before(start) && !s.CreatedAt.After(end)
	}), nil
}

// Earliest returns the oldest snapshot of a partition
func (r *MemoryAssetsSnapshotRepository) Earliest(ctx context.Context, backtestID *uuid.UUID) (*models.AssetsSnapshot, error) {
	found := r.filter(func(s *models.AssetsSnapshot) bool {
		return samePartition(s.BacktestID, backtestID)
	})
	if len(found) == 0 {
		return nil, models.ErrNotFound
	}
	return found[0], nil
}

func (r *MemoryAssetsSnapshotRepository) filter(keep func(*models.AssetsSnapshot) bool) []*models.AssetsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.AssetsSnapshot
	for _, s := range r.snapshots {
		if keep(s) {
			result = append(result, copySnapshot(s))
		}
	}
	return result
}

func copySnapshot(s *models.AssetsSnapshot) *models.AssetsSnapshot {
	c := *s
	if s.BacktestID != nil {
		id := *s.BacktestID
		c.BacktestID = &id
	}
	c.Positions = make(map[models.TradingSymbol]models.Position, len(s.Positions))
	for k, v := range s.Positions {
		c.Positions[k] = v
	}
	return &c
}

// MemoryBacktestRepository keeps backtests in memory
type MemoryBacktestRepository struct {
	mu        sync.RWMutex
	order     []uuid.UUID
	backtests map[uuid.UUID]*models.Backtest
}

// NewMemoryBacktestRepository creates an empty in-memory backtest store
func NewMemoryBacktestRepository() *MemoryBacktestRepository {
	return &MemoryBacktestRepository{backtests: make(map[uuid.UUID]*models.Backtest)}
}

// Create stores a copy of the backtest
func (r *MemoryBacktestRepository) Create(ctx context.Context, b *models.Backtest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backtests[b.ID]; exists {
		return models.ErrDuplicateKey
	}
	c := *b
	r.backtests[b.ID] = &c
	r.order = append(r.order, b.ID)
	return nil
}

// Finish moves a running backtest to its terminal state once
func (r *MemoryBacktestRepository) Finish(ctx context.Context, id uuid.UUID, completion models.BacktestCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backtests[id]
	if !ok {
		return models.ErrNotFound
	}
	if b.State != models.BacktestStateRunning {
		return models.ErrAlreadyFinished
	}
	end := completion.ExecutionEnd
	b.ExecutionEnd = &end
	b.State = completion.State
	b.StateDetails = completion.Details
	b.TotalReturn = completion.TotalReturn
	return nil
}

// GetByID returns a copy of the backtest
func (r *MemoryBacktestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Backtest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backtests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *b
	return &c, nil
}

// List returns the most recently created backtests first
func (r *MemoryBacktestRepository) List(ctx context.Context, limit int) ([]*models.Backtest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Backtest
	for i := len(r.order) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		c := *r.backtests[r.order[i]]
		result = append(result, &c)
	}
	return result, nil
}

// MemoryStrategySelectionRepository keeps the selected strategy in memory
type MemoryStrategySelectionRepository struct {
	mu        sync.RWMutex
	name      string
	changedBy string
}

// NewMemoryStrategySelectionRepository creates an empty selection store
func NewMemoryStrategySelectionRepository() *MemoryStrategySelectionRepository {
	return &MemoryStrategySelectionRepository{}
}

// Get returns the stored strategy name
func (r *MemoryStrategySelectionRepository) Get(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.name == "" {
		return "", models.ErrNotFound
	}
	return r.name, nil
}

// Set stores the strategy name
func (r *MemoryStrategySelectionRepository) Set(ctx context.Context, name, changedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
	r.changedBy = changedBy
	return nil
}

func samePartition(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

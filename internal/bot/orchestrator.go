package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/scheduler"
	"github.com/yourusername/trading-bot/internal/strategy"
)

// Dependencies holds the collaborators of the live orchestrator. Stream is
// optional.
type Dependencies struct {
	Repos    *repository.Repositories
	Selector *strategy.Selector
	Ticks    *TickExecutor
	Broker   broker.Client
	Market   datasource.Provider
	Stream   *broker.TradeUpdateStream
	Clock    Clock
}

// OrchestratorStatus represents current bot status
type OrchestratorStatus struct {
	Running             bool                `json:"running"`
	InvestingEnabled    bool                `json:"investing_enabled"`
	ActiveStrategy      string              `json:"active_strategy"`
	CircuitBreakerState string              `json:"circuit_breaker_state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	NextTick            time.Time           `json:"next_tick"`
	LastTask            *models.TradingTask `json:"last_task,omitempty"`
	MonitorMetrics      MonitorMetrics      `json:"monitor_metrics"`
	LastUpdate          time.Time           `json:"last_update"`
}

// Orchestrator runs the live trading loop
type Orchestrator struct {
	config    config.TradingConfig
	repos     *repository.Repositories
	selector  *strategy.Selector
	ticks     *TickExecutor
	client    broker.Client
	market    datasource.Provider
	stream    *broker.TradeUpdateStream
	clock     Clock
	scheduler *scheduler.Scheduler
	breaker   *CircuitBreaker
	monitor   *Monitor
	logger    *logrus.Logger
	audit     *logger.AuditLogger

	tickMu       sync.Mutex
	mu           sync.RWMutex
	running      bool
	lastTask     *models.TradingTask
	streamCancel context.CancelFunc
}

// NewOrchestrator creates the live orchestrator
func NewOrchestrator(cfg config.TradingConfig, deps Dependencies, log *logrus.Logger) (*Orchestrator, error) {
	if deps.Repos == nil || deps.Selector == nil || deps.Ticks == nil {
		return nil, fmt.Errorf("repositories, selector and tick executor are required")
	}
	if deps.Broker == nil || deps.Market == nil {
		return nil, fmt.Errorf("broker and market data provider are required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		CooldownPeriod:         cfg.CircuitBreakerCooldown(),
	}, log)

	o := &Orchestrator{
		config:    cfg,
		repos:     deps.Repos,
		selector:  deps.Selector,
		ticks:     deps.Ticks,
		client:    deps.Broker,
		market:    deps.Market,
		stream:    deps.Stream,
		clock:     deps.Clock,
		scheduler: scheduler.NewScheduler(log),
		breaker:   breaker,
		monitor:   NewMonitor(deps.Repos.AssetsSnapshot, log),
		logger:    log,
		audit:     logger.NewAuditLogger(log),
	}
	return o, nil
}

// Start restores the persisted strategy, schedules ticks and subscribes to
// trade updates
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.mu.Unlock()

	if err := RestoreSelection(ctx, o.selector, o.repos.StrategySelection, o.logger); err != nil {
		o.setRunning(false)
		return err
	}

	_, err := o.scheduler.Schedule("trading_tick", o.config.Schedule, o.config.TickTimeout(), func(ctx context.Context) {
		if _, err := o.RunTick(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) {
			o.logger.WithError(err).Error("Scheduled trading tick failed")
		}
	})
	if err != nil {
		o.setRunning(false)
		return err
	}
	if err := o.scheduler.Start(); err != nil {
		o.setRunning(false)
		return err
	}

	if o.stream != nil {
		streamCtx, cancel := context.WithCancel(ctx)
		o.mu.Lock()
		o.streamCancel = cancel
		o.mu.Unlock()

		o.stream.AddHandler(o.HandleTradeUpdate)
		go func() {
			if err := o.stream.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.WithError(err).Error("Trade update stream stopped")
			}
		}()
	}

	o.logger.WithFields(logrus.Fields{
		"strategy":          o.selector.ActiveName(),
		"schedule":          o.config.Schedule,
		"investing_enabled": o.config.Enabled,
		"next_tick":         o.scheduler.GetNextRun(),
	}).Info("Bot orchestrator started")
	return nil
}

// Stop halts the schedule and the trade update stream
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	cancel := o.streamCancel
	o.streamCancel = nil
	o.mu.Unlock()

	o.logger.Info("Stopping bot orchestrator")

	var stopErr error
	if err := o.scheduler.Stop(); err != nil {
		o.logger.WithError(err).Error("Failed to stop scheduler")
		stopErr = err
	}
	if cancel != nil {
		cancel()
	}
	if o.stream != nil {
		if err := o.stream.Close(); err != nil {
			o.logger.WithError(err).Warn("Failed to close trade update stream")
		}
	}

	o.logger.Info("Bot orchestrator stopped")
	return stopErr
}

// RunTick runs one live trading task with the active strategy. Ticks are
// serialized and refused while the circuit breaker is open.
func (o *Orchestrator) RunTick(ctx context.Context) (*TickResult, error) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	if o.breaker.IsOpen() {
		o.logger.Warn("Trading halted: circuit breaker is open")
		return nil, ErrCircuitOpen
	}

	if timeout := o.config.TickTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name := o.selector.ActiveName()
	result, err := o.ticks.Execute(ctx, TickRequest{
		AsOf:             o.clock.Now(),
		Strategy:         name,
		Broker:           o.client,
		Market:           o.market,
		IDs:              strategy.RandomIDs{},
		Clock:            o.clock,
		InvestingEnabled: o.config.Enabled,
	})
	if result != nil {
		o.mu.Lock()
		o.lastTask = result.Task
		o.mu.Unlock()
	}
	if err != nil {
		o.breaker.RecordFailure(err)
		return result, err
	}

	o.breaker.RecordSuccess()
	o.monitor.Observe(name, result.Snapshot)
	return result, nil
}

// HandleTradeUpdate records a fill, cancellation or expiry reported by the
// broker on the matching live action
func (o *Orchestrator) HandleTradeUpdate(ctx context.Context, update broker.TradeUpdate) error {
	action, err := o.findAction(ctx, update)
	if errors.Is(err, models.ErrNotFound) {
		o.logger.WithFields(logrus.Fields{
			"broker_order_id": update.BrokerOrderID,
			"client_order_id": update.ClientOrderID,
		}).Debug("Trade update for unknown order ignored")
		return nil
	}
	if err != nil {
		return err
	}

	if !update.IsFinal() || action.Status == update.Status {
		return nil
	}

	action.Status = update.Status
	if action.BrokerOrderID == nil && update.BrokerOrderID != "" {
		id := update.BrokerOrderID
		action.BrokerOrderID = &id
	}
	if update.FilledAt != nil {
		filledAt := *update.FilledAt
		action.ExecutedAt = &filledAt
	}
	if update.FillPrice != nil {
		price := *update.FillPrice
		action.AverageFillPrice = &price
	}
	if err := o.repos.TradingAction.UpdateOutcome(ctx, action); err != nil {
		return fmt.Errorf("failed to update action %s: %w", action.ID, err)
	}

	if action.IsFilled() && action.ExecutedAt != nil {
		fillPrice := ""
		if action.AverageFillPrice != nil {
			fillPrice = action.AverageFillPrice.String()
		}
		o.audit.LogActionFilled(action.ID.String(), update.BrokerOrderID, fillPrice, *action.ExecutedAt)
	} else {
		o.logger.WithFields(logrus.Fields{
			"action_id": action.ID,
			"status":    action.Status,
		}).Info("Trading action closed by broker")
	}
	return nil
}

func (o *Orchestrator) findAction(ctx context.Context, update broker.TradeUpdate) (*models.TradingAction, error) {
	if update.BrokerOrderID != "" {
		action, err := o.repos.TradingAction.GetByBrokerOrderID(ctx, update.BrokerOrderID)
		if !errors.Is(err, models.ErrNotFound) {
			return action, err
		}
	}
	id, err := uuid.Parse(update.ClientOrderID)
	if err != nil {
		return nil, models.ErrNotFound
	}
	return o.repos.TradingAction.GetByID(ctx, id)
}

// SelectStrategy switches the live strategy between ticks
func (o *Orchestrator) SelectStrategy(ctx context.Context, name, changedBy string) (string, error) {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()
	return SelectStrategy(ctx, o.selector, o.repos, name, changedBy, o.logger)
}

// PerformanceReport returns realized live returns within [start, end]
func (o *Orchestrator) PerformanceReport(ctx context.Context, start, end time.Time) (*PerformanceReport, error) {
	return o.monitor.PerformanceReport(ctx, start, end)
}

// CircuitBreaker exposes the breaker guarding live ticks
func (o *Orchestrator) CircuitBreaker() *CircuitBreaker {
	return o.breaker
}

// GetStatus returns current orchestrator status
func (o *Orchestrator) GetStatus() *OrchestratorStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return &OrchestratorStatus{
		Running:             o.running,
		InvestingEnabled:    o.config.Enabled,
		ActiveStrategy:      o.selector.ActiveName(),
		CircuitBreakerState: o.breaker.GetState().String(),
		ConsecutiveFailures: o.breaker.ConsecutiveFailures(),
		NextTick:            o.scheduler.GetNextRun(),
		LastTask:            o.lastTask,
		MonitorMetrics:      o.monitor.Metrics(),
		LastUpdate:          o.clock.Now(),
	}
}

func (o *Orchestrator) setRunning(running bool) {
	o.mu.Lock()
	o.running = running
	o.mu.Unlock()
}

// Package backtest replays the trading task over historical days against a
// simulated brokerage.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/bot"
	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/events"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

// Fixed state details
const (
	DetailsRunning   = "Running"
	DetailsFinished  = "Finished successfully"
	DetailsCancelled = "Cancelled by request"
)

var (
	// ErrBacktestNotRunning is returned when cancelling a backtest that already ended
	ErrBacktestNotRunning = errors.New("backtest is not running")
	// ErrInvalidRequest wraps every rejected backtest request
	ErrInvalidRequest = errors.New("invalid backtest request")
)

// Request describes a backtest to start. An empty Strategy runs the
// currently selected one.
type Request struct {
	Start        time.Time       `validate:"required"`
	End          time.Time       `validate:"required,gtefield=Start"`
	InitialCash  decimal.Decimal `validate:"-"`
	UsePredictor bool
	Description  string `validate:"max=1000"`
	Strategy     string
}

// ErrorDetails formats the state details of a failed backtest
func ErrorDetails(err error) string {
	code, message := bot.ErrorDetails(err)
	return fmt.Sprintf("Backtest failed with error code %s: %s", code, message)
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Executor runs backtests in the background. Every run owns its simulated
// broker, id generator and strategy state partition.
type Executor struct {
	config    config.BacktestConfig
	repos     *repository.Repositories
	selector  *strategy.Selector
	ticks     *bot.TickExecutor
	market    datasource.Provider
	publisher events.Publisher
	validate  *validator.Validate
	logger    *logrus.Logger
	audit     *logger.AuditLogger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	mu         sync.Mutex
	runs       map[uuid.UUID]*run
	wg         sync.WaitGroup
}

// NewExecutor creates a backtest executor
func NewExecutor(
	cfg config.BacktestConfig,
	repos *repository.Repositories,
	selector *strategy.Selector,
	ticks *bot.TickExecutor,
	market datasource.Provider,
	publisher events.Publisher,
	log *logrus.Logger,
) *Executor {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Executor{
		config:     cfg,
		repos:      repos,
		selector:   selector,
		ticks:      ticks,
		market:     market,
		publisher:  publisher,
		validate:   validator.New(),
		logger:     log,
		audit:      logger.NewAuditLogger(log),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		runs:       make(map[uuid.UUID]*run),
	}
}

// StartNew validates and persists a backtest, then runs it in the background.
// It returns as soon as the backtest is recorded as running.
func (e *Executor) StartNew(ctx context.Context, req Request) (uuid.UUID, error) {
	if req.Strategy == "" {
		req.Strategy = e.selector.ActiveName()
	}
	if err := e.validateRequest(req); err != nil {
		return uuid.Nil, err
	}

	b := &models.Backtest{
		ID:              uuid.New(),
		SimulationStart: models.Day(req.Start),
		SimulationEnd:   models.Day(req.End),
		ExecutionStart:  time.Now().UTC(),
		InitialCash:     req.InitialCash,
		UsePredictor:    req.UsePredictor,
		Strategy:        req.Strategy,
		State:           models.BacktestStateRunning,
		StateDetails:    DetailsRunning,
		Description:     req.Description,
	}
	if err := e.repos.Backtest.Create(ctx, b); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create backtest: %w", err)
	}

	runCtx, cancel := context.WithCancel(e.baseCtx)
	r := &run{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.runs[b.ID] = r
	active := len(e.runs)
	e.mu.Unlock()
	metrics.UpdateActiveBacktests(float64(active))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(r.done)
		defer e.release(b.ID)
		e.execute(runCtx, b)
	}()

	e.logger.WithFields(logrus.Fields{
		"backtest_id":  b.ID,
		"strategy":     b.Strategy,
		"start":        b.SimulationStart.Format("2006-01-02"),
		"end":          b.SimulationEnd.Format("2006-01-02"),
		"initial_cash": b.InitialCash.String(),
	}).Info("Backtest started")
	return b.ID, nil
}

func (e *Executor) validateRequest(req Request) error {
	if err := e.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				messages = append(messages, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(messages, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.InitialCash.IsPositive() {
		return fmt.Errorf("%w: InitialCash must be greater than 0", ErrInvalidRequest)
	}
	if _, err := e.selector.Lookup(req.Strategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// execute replays every day of the backtest and records the terminal state
func (e *Executor) execute(ctx context.Context, b *models.Backtest) {
	started := time.Now()
	id := b.ID
	sim := broker.NewSimulatedBroker(e.market, b.InitialCash, e.config.Currency, e.config.AllowShortSelling)
	ids := strategy.NewDeterministicIDs(b.ID)
	fits := pca.NewModelCache("backtest_pca", 0, 0)
	log := e.logger.WithFields(logrus.Fields{"backtest_id": b.ID, "strategy": b.Strategy})

	for day := b.SimulationStart; !day.After(b.SimulationEnd); day = models.AddDays(day, 1) {
		if ctx.Err() != nil {
			e.finish(ctx, b, models.BacktestStateCancelled, DetailsCancelled, 0, started)
			return
		}

		sim.SetDay(day)
		ids.SetDay(day)
		_, err := e.ticks.Execute(ctx, bot.TickRequest{
			AsOf:             day,
			BacktestID:       &id,
			Strategy:         b.Strategy,
			Broker:           sim,
			Market:           e.market,
			IDs:              ids,
			Clock:            bot.FixedClock(day),
			InvestingEnabled: true,
			UsePredictor:     b.UsePredictor,
			Models:           fits,
		})
		if err != nil {
			if ctx.Err() != nil {
				e.finish(ctx, b, models.BacktestStateCancelled, DetailsCancelled, 0, started)
				return
			}
			log.WithError(err).WithField("day", day.Format("2006-01-02")).Error("Backtest tick failed")
			e.finish(ctx, b, models.BacktestStateError, ErrorDetails(err), 0, started)
			return
		}
		metrics.RecordBacktestTick(b.Strategy)
	}

	if ctx.Err() != nil {
		e.finish(ctx, b, models.BacktestStateCancelled, DetailsCancelled, 0, started)
		return
	}

	snapshots, err := e.repos.AssetsSnapshot.ListByBacktest(ctx, &id)
	if err != nil {
		e.finish(ctx, b, models.BacktestStateError, ErrorDetails(fmt.Errorf("failed to list snapshots: %w", err)), 0, started)
		return
	}
	result := CalculateMetrics(snapshots)
	metrics.RecordBacktestReturn(b.Strategy, result.TotalReturn)
	metrics.RecordBacktestRisk(b.Strategy, result.MaxDrawdown, result.SharpeRatio)
	log.WithFields(logrus.Fields{
		"total_return":  result.TotalReturn,
		"max_drawdown":  result.MaxDrawdown,
		"sharpe_ratio":  result.SharpeRatio,
		"daily_returns": result.DailyReturns,
	}).Info("Backtest metrics calculated")

	e.finish(ctx, b, models.BacktestStateFinished, DetailsFinished, result.TotalReturn, started)
}

func (e *Executor) finish(ctx context.Context, b *models.Backtest, state models.BacktestState, details string, totalReturn float64, started time.Time) {
	ctx = context.WithoutCancel(ctx)
	completion := models.BacktestCompletion{
		ExecutionEnd: time.Now().UTC(),
		State:        state,
		Details:      details,
		TotalReturn:  totalReturn,
	}
	if err := e.repos.Backtest.Finish(ctx, b.ID, completion); err != nil {
		e.logger.WithError(err).WithField("backtest_id", b.ID).Error("Failed to finish backtest")
		return
	}

	oldState := b.State
	executionEnd := completion.ExecutionEnd
	b.ExecutionEnd = &executionEnd
	b.State = state
	b.StateDetails = details
	b.TotalReturn = totalReturn

	metrics.RecordBacktestRun(b.Strategy, string(state))
	metrics.RecordBacktestDuration(time.Since(started).Seconds())
	e.audit.LogBacktestStateChange(b.ID.String(), string(oldState), string(state), details)

	if err := e.publisher.BacktestFinished(ctx, b); err != nil {
		e.logger.WithError(err).WithField("backtest_id", b.ID).Warn("Failed to publish backtest event")
	}
}

func (e *Executor) release(id uuid.UUID) {
	e.mu.Lock()
	r, ok := e.runs[id]
	delete(e.runs, id)
	active := len(e.runs)
	e.mu.Unlock()
	if ok {
		r.cancel()
	}
	metrics.UpdateActiveBacktests(float64(active))
}

// CancelBacktest asks a running backtest to stop. The run observes the
// request before its next simulated day and ends as cancelled.
func (e *Executor) CancelBacktest(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		r.cancel()
		e.logger.WithField("backtest_id", id).Info("Backtest cancellation requested")
		return nil
	}

	if _, err := e.repos.Backtest.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrBacktestNotRunning
}

// Get returns the persisted backtest
func (e *Executor) Get(ctx context.Context, id uuid.UUID) (*models.Backtest, error) {
	return e.repos.Backtest.GetByID(ctx, id)
}

// Wait blocks until the backtest has ended or ctx is done, then returns
// its persisted record
func (e *Executor) Wait(ctx context.Context, id uuid.UUID) (*models.Backtest, error) {
	e.mu.Lock()
	r, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.Get(ctx, id)
}

// Running lists the ids of backtests in progress
func (e *Executor) Running() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels every running backtest and waits for them to end
func (e *Executor) Shutdown() {
	e.baseCancel()
	e.wg.Wait()
}

package backtest

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/bot"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/events"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

var (
	simStart = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	simEnd   = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSelector(t *testing.T) *strategy.Selector {
	t.Helper()
	selector, err := strategy.NewDefaultSelector(config.StrategyConfig{
		Active: strategy.LosersName,
		Losers: config.LosersConfig{
			EvaluationFrequencyInDays: 7,
			AnalysisLengthInDays:      5,
			TopGrowingSymbolsBuyRatio: 0.5,
			MaxStocksBuyCount:         2,
		},
		Winners: config.WinnersConfig{
			EvaluationFrequencyInDays: 7,
			AnalysisLengthInDays:      5,
			TopGrowingSymbolsBuyRatio: 0.5,
			MaxStocksBuyCount:         2,
			BuyWaitTimeInDays:         1,
			SimultaneousEvaluations:   2,
		},
		Pairs: config.PairsConfig{
			AnalysisLengthInDays:       10,
			ReselectionFrequencyInDays: 7,
			SignalFrequencyInDays:      1,
			MinCorrelation:             0.5,
			MaxPairs:                   2,
			EntryThreshold:             1.5,
			ExitThreshold:              0.5,
			CapitalFractionPerPair:     0.2,
			VarianceFraction:           0.9,
			ModelValidityInDays:        7,
		},
		PCA: config.PCAConfig{
			AnalysisLengthInDays: 10,
			VarianceFraction:     0.9,
			ModelValidityInDays:  7,
			UndervaluedThreshold: -1,
			OvervaluedThreshold:  0,
			BuyFraction:          0.3,
			LimitPriceDamping:    0.5,
			CacheTTLMinutes:      60,
		},
	}, testLogger())
	require.NoError(t, err)
	return selector
}

// bars builds daily bars from 2024-06-03 through simEnd, moving linearly
// from first to last
func bars(first, last float64) []models.PricePoint {
	const n = 12
	start := models.AddDays(simEnd, -(n - 1))
	points := make([]models.PricePoint, n)
	for i := range points {
		price := decimal.NewFromFloat(first + (last-first)*float64(i)/float64(n-1))
		points[i] = models.PricePoint{
			Date:   models.AddDays(start, i),
			Open:   price,
			Close:  price,
			High:   price,
			Low:    price,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return points
}

func testMarket() *datasource.MemoryProvider {
	return datasource.NewMemoryProvider(map[models.TradingSymbol][]models.PricePoint{
		"A": bars(100, 110),
		"B": bars(100, 78),
		"C": bars(100, 89),
		"D": bars(100, 121),
	})
}

// wavyMarket holds daily bars from 2024-05-15 through simEnd. Closes
// oscillate around diverging trends and F tracks A with its own ripple.
func wavyMarket() *datasource.MemoryProvider {
	start := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	n := int(simEnd.Sub(start).Hours()/24) + 1
	shapes := []struct {
		symbol             models.TradingSymbol
		trend, amp, period float64
	}{
		{"A", 0.4, 3, 5},
		{"B", -0.5, 4, 7},
		{"C", 0.1, 2, 3},
		{"D", 0.6, 5, 11},
		{"E", -0.2, 3, 4},
	}

	market := datasource.NewMemoryProvider(nil)
	closes := make(map[models.TradingSymbol][]float64)
	for _, shape := range shapes {
		for i := 0; i < n; i++ {
			closes[shape.symbol] = append(closes[shape.symbol],
				100+shape.trend*float64(i)+shape.amp*math.Sin(2*math.Pi*float64(i)/shape.period))
		}
	}
	for i, a := range closes["A"] {
		closes["F"] = append(closes["F"], 1.5*a+3*math.Sin(2*math.Pi*float64(i)/6))
	}

	for symbol, series := range closes {
		points := make([]models.PricePoint, n)
		for i, c := range series {
			price := decimal.NewFromFloat(c).Round(4)
			points[i] = models.PricePoint{
				Date:   models.AddDays(start, i),
				Open:   price,
				Close:  price,
				High:   price,
				Low:    price,
				Volume: decimal.NewFromInt(1000),
			}
		}
		market.Add(symbol, points...)
	}
	return market
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
	return nil
}

type fixture struct {
	repos    *repository.Repositories
	executor *Executor
}

func newFixture(t *testing.T, market datasource.Provider, publisher events.Publisher) *fixture {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	selector := testSelector(t)
	shared := pca.NewModelCache("backtest_test", time.Hour, 48*time.Hour)
	ticks := bot.NewTickExecutor(repos, selector, shared, nil, nil, testLogger())
	cfg := config.BacktestConfig{InitialCash: 10000, Currency: "USD"}

	executor := NewExecutor(cfg, repos, selector, ticks, market, publisher, testLogger())
	t.Cleanup(executor.Shutdown)
	return &fixture{repos: repos, executor: executor}
}

func validRequest() Request {
	return Request{
		Start:       simStart,
		End:         simEnd,
		InitialCash: decimal.NewFromInt(10000),
		Description: "losers over one week",
		Strategy:    strategy.LosersName,
	}
}

func waitFor(t *testing.T, f *fixture, id uuid.UUID) *models.Backtest {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b, err := f.executor.Wait(ctx, id)
	require.NoError(t, err)
	return b
}

func TestExecutor_StartNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Request)
		wantErr string
	}{
		{
			name:    "end before start",
			modify:  func(r *Request) { r.End = models.AddDays(r.Start, -1) },
			wantErr: "End failed on 'gtefield'",
		},
		{
			name:    "missing start",
			modify:  func(r *Request) { r.Start = time.Time{} },
			wantErr: "Start failed on 'required'",
		},
		{
			name:    "no cash",
			modify:  func(r *Request) { r.InitialCash = decimal.Zero },
			wantErr: "InitialCash must be greater than 0",
		},
		{
			name:    "unknown strategy",
			modify:  func(r *Request) { r.Strategy = "momentum" },
			wantErr: `unknown strategy "momentum"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testMarket(), nil)
			req := validRequest()
			tt.modify(&req)

			id, err := f.executor.StartNew(context.Background(), req)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, uuid.Nil, id)
			assert.Empty(t, f.executor.Running())
		})
	}
}

func TestExecutor_UnknownStrategyIsTyped(t *testing.T) {
	f := newFixture(t, testMarket(), nil)
	req := validRequest()
	req.Strategy = "momentum"

	_, err := f.executor.StartNew(context.Background(), req)

	var unknown *strategy.UnknownStrategyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "momentum", unknown.Name)
}

func TestExecutor_RunsToCompletion(t *testing.T) {
	publisher := &mockPublisher{}
	publisher.On("BacktestFinished", mock.Anything, mock.MatchedBy(func(b *models.Backtest) bool {
		return b.State == models.BacktestStateFinished
	})).Return(nil).Once()

	f := newFixture(t, testMarket(), publisher)
	ctx := context.Background()

	req := validRequest()
	req.Strategy = ""
	id, err := f.executor.StartNew(ctx, req)
	require.NoError(t, err)

	b := waitFor(t, f, id)
	assert.Equal(t, models.BacktestStateFinished, b.State)
	assert.Equal(t, DetailsFinished, b.StateDetails)
	assert.Equal(t, strategy.LosersName, b.Strategy)
	assert.Equal(t, "losers over one week", b.Description)
	require.NotNil(t, b.ExecutionEnd)

	tasks, err := f.repos.TradingTask.ListByBacktest(ctx, &id)
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	for _, task := range tasks {
		assert.Equal(t, models.TradingTaskStateSuccess, task.State)
	}
	assert.Equal(t, uuid.NewSHA1(id, []byte("2024-06-10/1")), tasks[0].ID)

	snapshots, err := f.repos.AssetsSnapshot.ListByBacktest(ctx, &id)
	require.NoError(t, err)
	require.Len(t, snapshots, 5)
	assert.InDelta(t, TotalReturn(snapshots), b.TotalReturn, 1e-12)

	actions, err := f.repos.TradingAction.ListByBacktest(ctx, &id)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	for _, action := range actions {
		assert.Equal(t, models.ActionStatusFilled, action.Status)
		assert.True(t, action.CreatedAt.Equal(models.AddDays(simStart, 1)))
	}

	live, err := f.repos.AssetsSnapshot.ListByBacktest(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, live)

	assert.ErrorIs(t, f.executor.CancelBacktest(ctx, id), ErrBacktestNotRunning)
	publisher.AssertExpectations(t)
}

type actionOutcome struct {
	Symbol    models.TradingSymbol
	Quantity  string
	Status    models.ActionStatus
	FillPrice string
	Day       time.Time
}

func outcomes(t *testing.T, repos *repository.Repositories, id uuid.UUID) []actionOutcome {
	t.Helper()
	actions, err := repos.TradingAction.ListByBacktest(context.Background(), &id)
	require.NoError(t, err)
	result := make([]actionOutcome, len(actions))
	for i, a := range actions {
		result[i] = actionOutcome{
			Symbol:   a.Symbol,
			Quantity: a.Quantity.String(),
			Status:   a.Status,
			Day:      a.CreatedAt,
		}
		if a.AverageFillPrice != nil {
			result[i].FillPrice = a.AverageFillPrice.String()
		}
	}
	return result
}

func snapshotEquity(t *testing.T, repos *repository.Repositories, id uuid.UUID) []string {
	t.Helper()
	snapshots, err := repos.AssetsSnapshot.ListByBacktest(context.Background(), &id)
	require.NoError(t, err)
	equity := make([]string, len(snapshots))
	for i, s := range snapshots {
		equity[i] = s.Equity.String()
	}
	return equity
}

func TestExecutor_Deterministic(t *testing.T) {
	tests := []struct {
		strategy    string
		wantActions bool
	}{
		{strategy: strategy.LosersName, wantActions: true},
		{strategy: strategy.WinnersName, wantActions: true},
		{strategy: strategy.PairsName},
		{strategy: strategy.PcaName},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			f := newFixture(t, wavyMarket(), nil)
			ctx := context.Background()
			req := validRequest()
			req.Strategy = tt.strategy

			// a finished run leaves later models behind for the runs after it
			first, err := f.executor.StartNew(ctx, req)
			require.NoError(t, err)
			a := waitFor(t, f, first)
			require.Equal(t, models.BacktestStateFinished, a.State, a.StateDetails)

			second, err := f.executor.StartNew(ctx, req)
			require.NoError(t, err)
			third, err := f.executor.StartNew(ctx, req)
			require.NoError(t, err)
			b := waitFor(t, f, second)
			c := waitFor(t, f, third)
			require.Equal(t, models.BacktestStateFinished, b.State, b.StateDetails)
			require.Equal(t, models.BacktestStateFinished, c.State, c.StateDetails)

			assert.Equal(t, a.TotalReturn, b.TotalReturn)
			assert.Equal(t, a.TotalReturn, c.TotalReturn)

			firstOutcomes := outcomes(t, f.repos, first)
			if tt.wantActions {
				assert.NotEmpty(t, firstOutcomes)
			}
			assert.Equal(t, firstOutcomes, outcomes(t, f.repos, second))
			assert.Equal(t, firstOutcomes, outcomes(t, f.repos, third))

			equity := snapshotEquity(t, f.repos, first)
			assert.Len(t, equity, 5)
			assert.Equal(t, equity, snapshotEquity(t, f.repos, second))
			assert.Equal(t, equity, snapshotEquity(t, f.repos, third))
		})
	}
}

// blockingMarket stalls the exchange calendar check of one day until the
// run is cancelled
type blockingMarket struct {
	*datasource.MemoryProvider
	day     time.Time
	once    sync.Once
	reached chan struct{}
}

func (m *blockingMarket) GetAllPrices(ctx context.Context, start, end time.Time) (map[models.TradingSymbol][]models.PricePoint, error) {
	if start.Equal(m.day) && end.Equal(m.day) {
		m.once.Do(func() { close(m.reached) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.MemoryProvider.GetAllPrices(ctx, start, end)
}

func TestExecutor_Cancel(t *testing.T) {
	blockDay := models.AddDays(simStart, 2)
	market := &blockingMarket{MemoryProvider: testMarket(), day: blockDay, reached: make(chan struct{})}
	publisher := &mockPublisher{}
	publisher.On("BacktestFinished", mock.Anything, mock.MatchedBy(func(b *models.Backtest) bool {
		return b.State == models.BacktestStateCancelled
	})).Return(nil).Once()
	f := newFixture(t, market, publisher)
	ctx := context.Background()

	id, err := f.executor.StartNew(ctx, validRequest())
	require.NoError(t, err)

	select {
	case <-market.reached:
	case <-time.After(10 * time.Second):
		t.Fatal("backtest never reached the blocking day")
	}
	assert.Equal(t, []uuid.UUID{id}, f.executor.Running())
	require.NoError(t, f.executor.CancelBacktest(ctx, id))

	b := waitFor(t, f, id)
	assert.Equal(t, models.BacktestStateCancelled, b.State)
	assert.Equal(t, DetailsCancelled, b.StateDetails)
	assert.Zero(t, b.TotalReturn)
	assert.Empty(t, f.executor.Running())

	actions, err := f.repos.TradingAction.ListByBacktest(ctx, &id)
	require.NoError(t, err)
	for _, action := range actions {
		assert.True(t, action.CreatedAt.Before(blockDay))
	}

	assert.ErrorIs(t, f.executor.CancelBacktest(ctx, id), ErrBacktestNotRunning)
	assert.ErrorIs(t, f.executor.CancelBacktest(ctx, uuid.New()), models.ErrNotFound)
	publisher.AssertExpectations(t)
}

type failingMarket struct {
	*datasource.MemoryProvider
}

func (m failingMarket) GetAllPrices(ctx context.Context, start, end time.Time) (map[models.TradingSymbol][]models.PricePoint, error) {
	return nil, errors.New("disk unavailable")
}

func TestExecutor_TickFailure(t *testing.T) {
	f := newFixture(t, failingMarket{MemoryProvider: testMarket()}, nil)

	id, err := f.executor.StartNew(context.Background(), validRequest())
	require.NoError(t, err)

	b := waitFor(t, f, id)
	assert.Equal(t, models.BacktestStateError, b.State)
	assert.Equal(t, "Backtest failed with error code api-call-failed: Call to Broker API failed: disk unavailable", b.StateDetails)
}

func TestExecutor_Shutdown(t *testing.T) {
	blockDay := simStart
	market := &blockingMarket{MemoryProvider: testMarket(), day: blockDay, reached: make(chan struct{})}
	f := newFixture(t, market, nil)

	id, err := f.executor.StartNew(context.Background(), validRequest())
	require.NoError(t, err)
	<-market.reached

	f.executor.Shutdown()

	b, err := f.executor.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.BacktestStateCancelled, b.State)
}

func TestErrorDetails(t *testing.T) {
	assert.Equal(t, "Backtest failed with error code unknown: boom", ErrorDetails(errors.New("boom")))
}

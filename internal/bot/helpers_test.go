package bot

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

var testDay = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
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
	}
}

func testSelector() *strategy.Selector {
	selector, err := strategy.NewDefaultSelector(testStrategyConfig(), testLogger())
	if err != nil {
		panic(err)
	}
	return selector
}

// bars builds consecutive daily bars ending on testDay, moving linearly
// from first to last
func bars(first, last float64, n int) []models.PricePoint {
	start := models.AddDays(testDay, -(n - 1))
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
		"A": bars(100, 110, 10),
		"B": bars(100, 80, 10),
		"C": bars(100, 90, 10),
		"D": bars(100, 120, 10),
	})
}

func simBroker(market datasource.Provider, day time.Time) *broker.SimulatedBroker {
	b := broker.NewSimulatedBroker(market, decimal.NewFromInt(10000), "USD", false)
	b.SetDay(day)
	return b
}

func newTicks(repos *repository.Repositories, selector *strategy.Selector) *TickExecutor {
	return NewTickExecutor(repos, selector, nil, nil, nil, testLogger())
}

// stubBroker fails every call with err
type stubBroker struct {
	err error
}

func (b stubBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	return nil, b.err
}

func (b stubBroker) GetAssets(ctx context.Context) (*models.AssetsSnapshot, error) {
	return nil, b.err
}

func (b stubBroker) GetTradableAssets(ctx context.Context) ([]broker.TradableAsset, error) {
	return nil, b.err
}

func (b stubBroker) IsOpenWithin(ctx context.Context, now time.Time, window time.Duration) (bool, error) {
	return false, b.err
}

package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
)

func pcaConfig() config.PCAConfig {
	return config.PCAConfig{
		AnalysisLengthInDays: 5,
		VarianceFraction:     0.9,
		ModelValidityInDays:  10,
		UndervaluedThreshold: -1,
		OvervaluedThreshold:  0,
		BuyFraction:          0.3,
		LimitPriceDamping:    0.5,
		CacheTTLMinutes:      60,
	}
}

// pcaFixture prices A on its model, B two deviations cheap and C one rich
func pcaFixture() (*datasource.MemoryProvider, *pca.ModelCache) {
	market := datasource.NewMemoryProvider(nil)
	market.Add("A", series(100, 120, 130)...)
	market.Add("B", series(100, 90, 80)...)
	market.Add("C", series(100, 105, 110)...)

	cfg := pcaConfig()
	cache := pca.NewModelCache("pca_strategy_test", time.Hour, 0)
	cache.Set(modelScope(cfg.AnalysisLengthInDays, cfg.VarianceFraction, cfg.ModelValidityInDays), []models.TradingSymbol{"A", "B", "C"}, &pca.Model{
		CreatedAt: testDay,
		ExpiresAt: models.AddDays(testDay, 10),
		Symbols:   []models.TradingSymbol{"A", "B", "C"},
		Means:     []float64{100, 100, 100},
		StdDevs:   []float64{10, 10, 10},
		Basis:     [][]float64{{1}, {0}, {0}},
	})
	return market, cache
}

func TestPcaStrategy_MarketOrders(t *testing.T) {
	market, cache := pcaFixture()
	s := NewPcaStrategy(pcaConfig(), testLogger())
	in := newInput(market, assets(1000, 2000, map[models.TradingSymbol]float64{"C": 4, "A": 1}))
	in.Models = cache

	next, actions, err := s.Evaluate(context.Background(), in, s.NewState())
	require.NoError(t, err)

	// 1000 * 0.3 / 80
	assert.Equal(t, []string{"market_buy B 3.75", "market_sell C 4"}, actionSummary(actions))
	assert.Equal(t, models.AddDays(testDay, 1), *next.(*models.PcaState).NextEvaluationDay)
}

func TestPcaStrategy_LimitOrdersWithPredictor(t *testing.T) {
	market, cache := pcaFixture()
	s := NewPcaStrategy(pcaConfig(), testLogger())
	in := newInput(market, assets(1000, 2000, map[models.TradingSymbol]float64{"C": 4.5}))
	in.Models = cache
	in.UsePredictor = true

	_, actions, err := s.Evaluate(context.Background(), in, s.NewState())
	require.NoError(t, err)
	require.Len(t, actions, 2)

	buy := actions[0]
	assert.Equal(t, models.OrderTypeLimitBuy, buy.OrderType)
	require.NotNil(t, buy.Price)
	assert.True(t, decimal.RequireFromString("79.6").Equal(*buy.Price), buy.Price.String())
	assert.True(t, decimal.NewFromInt(3).Equal(buy.Quantity))

	sell := actions[1]
	assert.Equal(t, models.OrderTypeLimitSell, sell.OrderType)
	assert.True(t, decimal.RequireFromString("110.55").Equal(*sell.Price), sell.Price.String())
	assert.True(t, decimal.NewFromInt(4).Equal(sell.Quantity))
}

func TestPcaStrategy_NoBuysWithoutCash(t *testing.T) {
	market, cache := pcaFixture()
	s := NewPcaStrategy(pcaConfig(), testLogger())
	in := newInput(market, assets(10, 2000, nil))
	in.Models = cache

	_, actions, err := s.Evaluate(context.Background(), in, s.NewState())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPcaStrategy_GatedSameDay(t *testing.T) {
	s := NewPcaStrategy(pcaConfig(), testLogger())
	state := &models.PcaState{NextEvaluationDay: models.DayPtr(models.AddDays(testDay, 1))}

	next, actions, err := s.Evaluate(context.Background(), newInput(datasource.NewMemoryProvider(nil), assets(0, 0, nil)), state)
	require.NoError(t, err)
	assert.Same(t, state, next)
	assert.Empty(t, actions)
}

func TestLimitPrices(t *testing.T) {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	tests := []struct {
		name string
		got  decimal.Decimal
		want decimal.Decimal
	}{
		{"buy between", LimitBuyPrice(d("100"), d("90"), 0.25), d("92.5")},
		{"buy last at low", LimitBuyPrice(d("90"), d("90"), 0.25), d("90")},
		{"buy last below low", LimitBuyPrice(d("85"), d("90"), 0.25), d("90")},
		{"sell between", LimitSellPrice(d("100"), d("110"), 0.25), d("107.5")},
		{"sell last above high", LimitSellPrice(d("115"), d("110"), 0.25), d("110")},
		{"full damping keeps last", LimitSellPrice(d("100"), d("110"), 1), d("100")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(tt.got), "want %s got %s", tt.want, tt.got)
		})
	}
}

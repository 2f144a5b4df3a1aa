package strategy

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
)

var testDay = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// series builds consecutive daily bars ending on testDay
func series(closes ...float64) []models.PricePoint {
	start := models.AddDays(testDay, -(len(closes) - 1))
	points := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		points[i] = models.PricePoint{
			Date:   models.AddDays(start, i),
			Open:   price,
			Close:  price,
			High:   price.Mul(decimal.RequireFromString("1.01")),
			Low:    price.Mul(decimal.RequireFromString("0.99")),
			Volume: decimal.NewFromInt(1000),
		}
	}
	return points
}

// linear interpolates n closes from first to last
func linear(first, last float64, n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = first + (last-first)*float64(i)/float64(n-1)
	}
	return closes
}

func assets(cash, equity float64, positions map[models.TradingSymbol]float64) *models.AssetsSnapshot {
	snapshot := &models.AssetsSnapshot{
		Equity:    decimal.NewFromFloat(equity),
		Cash:      models.Cash{Currency: "USD", Available: decimal.NewFromFloat(cash), BuyingPower: decimal.NewFromFloat(cash)},
		Positions: make(map[models.TradingSymbol]models.Position),
	}
	for s, q := range positions {
		qty := decimal.NewFromFloat(q)
		snapshot.Positions[s] = models.Position{
			Symbol:            s,
			Quantity:          qty,
			AvailableQuantity: decimal.Max(qty, decimal.Zero),
		}
	}
	return snapshot
}

func newInput(market datasource.Provider, snapshot *models.AssetsSnapshot) Input {
	ids := NewDeterministicIDs(uuid.MustParse("5f0c1a52-3f7e-4d4a-9a55-0e7a3c1d2b11"))
	ids.SetDay(testDay)
	return Input{
		AsOf:    testDay,
		Assets:  snapshot,
		Market:  market,
		Actions: fakeActions{},
		IDs:     ids,
	}
}

type fakeActions map[uuid.UUID]*models.TradingAction

func (f fakeActions) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TradingAction, error) {
	var found []*models.TradingAction
	for _, id := range ids {
		if a, ok := f[id]; ok {
			found = append(found, a.Clone())
		}
	}
	return found, nil
}

func (f fakeActions) add(symbol models.TradingSymbol, qty float64, status models.ActionStatus) uuid.UUID {
	id := uuid.New()
	a := models.NewMarketAction(id, testDay, symbol, decimal.NewFromFloat(qty), models.OrderTypeMarketBuy)
	a.Status = status
	f[id] = a
	return id
}

func actionSummary(actions []*models.TradingAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a.OrderType) + " " + a.Symbol.String() + " " + a.Quantity.String()
	}
	return out
}

// momentumMarket has ten symbols A..J whose window returns rise with the letter
func momentumMarket() *datasource.MemoryProvider {
	market := datasource.NewMemoryProvider(nil)
	for i, s := range []models.TradingSymbol{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"} {
		market.Add(s, series(linear(100, 80+5*float64(i), 6)...)...)
	}
	return market
}

package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
)

const (
	// quantityPlaces is the precision of fractional order quantities
	quantityPlaces = 6
	// lastPriceLookbackDays bounds the search for the latest close
	lastPriceLookbackDays = 14
)

var cashBuffer = decimal.RequireFromString("0.95")

type rankedSymbol struct {
	symbol models.TradingSymbol
	ret    float64
	up     int
	down   int
}

// loadWindow fetches the universe's prices for the days up to and including
// the evaluated day.
func loadWindow(ctx context.Context, in Input, days int) (map[models.TradingSymbol][]models.PricePoint, error) {
	start := models.AddDays(in.Day(), -days)
	all, err := in.Market.GetAllPrices(ctx, start, in.Day())
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	if len(in.Universe) == 0 {
		return all, nil
	}
	universe := models.SymbolSet(in.Universe)
	for s := range all {
		if _, ok := universe[s]; !ok {
			delete(all, s)
		}
	}
	return all, nil
}

// rankByReturn computes window returns and day moves, ordered ascending by
// return with ties broken by symbol.
func rankByReturn(series map[models.TradingSymbol][]models.PricePoint) []rankedSymbol {
	ranked := make([]rankedSymbol, 0, len(series))
	for s, points := range series {
		if len(points) < 2 || points[0].Close.IsZero() {
			continue
		}
		r := rankedSymbol{
			symbol: s,
			ret:    points[len(points)-1].Close.Div(points[0].Close).Sub(decimal.NewFromInt(1)).InexactFloat64(),
		}
		for i := 1; i < len(points); i++ {
			switch points[i].Close.Cmp(points[i-1].Close) {
			case 1:
				r.up++
			case -1:
				r.down++
			}
		}
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].ret != ranked[j].ret {
			return ranked[i].ret < ranked[j].ret
		}
		return ranked[i].symbol < ranked[j].symbol
	})
	return ranked
}

// selectionSize is the number of ranked symbols kept by a ratio and a cap
func selectionSize(total int, ratio float64, max int) int {
	n := int(math.Floor(float64(total) * ratio))
	if n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return n
}

func symbolsOf(ranked []rankedSymbol) []models.TradingSymbol {
	symbols := make([]models.TradingSymbol, len(ranked))
	for i, r := range ranked {
		symbols[i] = r.symbol
	}
	return symbols
}

func lastPrice(ctx context.Context, in Input, symbol models.TradingSymbol) (decimal.Decimal, error) {
	p, err := datasource.LastPrice(ctx, in.Market, symbol, in.Day(), lastPriceLookbackDays)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Close, nil
}

// quantityFor converts an amount of money to a share quantity at price
func quantityFor(amount, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !amount.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(price).Truncate(quantityPlaces)
}

func marketBuy(in Input, symbol models.TradingSymbol, quantity decimal.Decimal) *models.TradingAction {
	return models.NewMarketAction(in.IDs.NewID(), in.AsOf, symbol, quantity, models.OrderTypeMarketBuy)
}

func marketSell(in Input, symbol models.TradingSymbol, quantity decimal.Decimal) *models.TradingAction {
	return models.NewMarketAction(in.IDs.NewID(), in.AsOf, symbol, quantity, models.OrderTypeMarketSell)
}

// sellAllHeld emits market sells for every held position with an available quantity
func sellAllHeld(in Input, keep map[models.TradingSymbol]struct{}) []*models.TradingAction {
	var actions []*models.TradingAction
	for _, s := range in.Assets.HeldSymbols() {
		if _, ok := keep[s]; ok {
			continue
		}
		p, _ := in.Assets.Position(s)
		if p.AvailableQuantity.IsPositive() {
			actions = append(actions, marketSell(in, s, p.AvailableQuantity))
		}
	}
	return actions
}

func availableCash(in Input) decimal.Decimal {
	if in.Assets == nil {
		return decimal.Zero
	}
	return in.Assets.Cash.Available
}

package datasource

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/trading-bot/internal/models"
)

// MemoryProvider serves price history held in memory. It backs CSV
// replays and tests.
type MemoryProvider struct {
	mu     sync.RWMutex
	series map[models.TradingSymbol][]models.PricePoint
}

// NewMemoryProvider creates a provider over copies of the given series
func NewMemoryProvider(series map[models.TradingSymbol][]models.PricePoint) *MemoryProvider {
	p := &MemoryProvider{series: make(map[models.TradingSymbol][]models.PricePoint, len(series))}
	for symbol, points := range series {
		p.Add(symbol, points...)
	}
	return p
}

// Name returns the name of the data source
func (p *MemoryProvider) Name() string {
	return "memory"
}

// Add merges points into the series of symbol. A point replaces any
// existing point of the same day.
func (p *MemoryProvider) Add(symbol models.TradingSymbol, points ...models.PricePoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byDay := make(map[time.Time]models.PricePoint, len(p.series[symbol])+len(points))
	for _, point := range p.series[symbol] {
		byDay[point.Date] = point
	}
	for _, point := range points {
		point.Date = models.Day(point.Date)
		byDay[point.Date] = point
	}

	merged := make([]models.PricePoint, 0, len(byDay))
	for _, point := range byDay {
		merged = append(merged, point)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	p.series[symbol] = merged
}

// Symbols returns every symbol with at least one point, sorted
func (p *MemoryProvider) Symbols() []models.TradingSymbol {
	p.mu.RLock()
	defer p.mu.RUnlock()

	symbols := make([]models.TradingSymbol, 0, len(p.series))
	for symbol := range p.series {
		symbols = append(symbols, symbol)
	}
	return models.SortSymbols(symbols)
}

// GetPrices returns the points of symbol within [start, end]
func (p *MemoryProvider) GetPrices(ctx context.Context, symbol models.TradingSymbol, start, end time.Time) ([]models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return filterRange(p.series[symbol], start, end), nil
}

// GetAllPrices returns every symbol with data within [start, end]
func (p *MemoryProvider) GetAllPrices(ctx context.Context, start, end time.Time) (map[models.TradingSymbol][]models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[models.TradingSymbol][]models.PricePoint)
	for symbol, series := range p.series {
		if points := filterRange(series, start, end); len(points) > 0 {
			result[symbol] = points
		}
	}
	return result, nil
}

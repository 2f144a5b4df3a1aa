package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
)

const allSymbolsKey = "*"

// CachedProvider memoizes range queries of another provider. Returned
// slices are shared between callers and must not be modified.
type CachedProvider struct {
	inner     Provider
	cache     *cache.Cache
	mu        sync.Mutex
	hitCount  uint64
	missCount uint64
}

// NewCachedProvider wraps inner with an in-memory cache
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
	}
}

// Name returns the name of the wrapped data source
func (p *CachedProvider) Name() string {
	return p.inner.Name()
}

// GetPrices returns cached points of symbol or fetches them
func (p *CachedProvider) GetPrices(ctx context.Context, symbol models.TradingSymbol, start, end time.Time) ([]models.PricePoint, error) {
	key := rangeKey(symbol.String(), start, end)
	if item, found := p.cache.Get(key); found {
		p.record(true)
		return item.([]models.PricePoint), nil
	}
	p.record(false)

	points, err := p.inner.GetPrices(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(key, points)
	return points, nil
}

// GetAllPrices returns cached points of all symbols or fetches them
func (p *CachedProvider) GetAllPrices(ctx context.Context, start, end time.Time) (map[models.TradingSymbol][]models.PricePoint, error) {
	key := rangeKey(allSymbolsKey, start, end)
	if item, found := p.cache.Get(key); found {
		p.record(true)
		return item.(map[models.TradingSymbol][]models.PricePoint), nil
	}
	p.record(false)

	all, err := p.inner.GetAllPrices(ctx, start, end)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(key, all)
	return all, nil
}

// Stats returns cache hit and miss counts
func (p *CachedProvider) Stats() (hits, misses uint64, ratio float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.hitCount + p.missCount
	if total > 0 {
		ratio = float64(p.hitCount) / float64(total)
	}
	return p.hitCount, p.missCount, ratio
}

// Flush drops every cached range
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}

func (p *CachedProvider) record(hit bool) {
	p.mu.Lock()
	if hit {
		p.hitCount++
	} else {
		p.missCount++
	}
	ratio := float64(p.hitCount) / float64(p.hitCount+p.missCount)
	p.mu.Unlock()
	metrics.UpdateCacheHitRatio("market_data", ratio)
}

func rangeKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, models.Day(start).Format("2006-01-02"), models.Day(end).Format("2006-01-02"))
}

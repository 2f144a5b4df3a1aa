package pca

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
)

// Builder fits a model for symbols using data up to and including asOf
type Builder func(ctx context.Context, symbols []models.TradingSymbol, asOf time.Time) (*Model, error)

// CacheKey identifies a fitted model by fit parameters, symbol set and fit day.
// Scope carries the fit parameters so models fit differently never collide.
type CacheKey struct {
	Scope   string
	Symbols []models.TradingSymbol
	AsOf    time.Time
}

// String returns string representation of cache key
func (k CacheKey) String() string {
	return setKey(k.Scope, k.Symbols) + "@" + models.Day(k.AsOf).Format("2006-01-02")
}

func setKey(scope string, symbols []models.TradingSymbol) string {
	sorted := models.SortSymbols(append([]models.TradingSymbol(nil), symbols...))
	parts := make([]string, len(sorted))
	for i, s := range sorted {
		parts[i] = s.String()
	}
	set := strings.Join(parts, ",")
	if scope == "" {
		return set
	}
	return scope + "|" + set
}

type inflight struct {
	done  chan struct{}
	model *Model
	err   error
}

type fitRef struct {
	key       string
	createdAt time.Time
}

// ModelCache keeps fitted models in memory. A still-valid model is always
// served without waiting, including while its replacement is being built.
type ModelCache struct {
	name         string
	cache        *cache.Cache
	refreshAhead time.Duration
	mu           sync.Mutex
	fits         map[string][]fitRef
	building     map[string]*inflight
	hitCount     uint64
	missCount    uint64
}

// NewModelCache creates a model cache. When refreshAhead is positive, a
// model that expires within that window is rebuilt in the background while
// callers keep receiving it. A non-positive ttl keeps models until Clear.
func NewModelCache(name string, ttl, refreshAhead time.Duration) *ModelCache {
	var store *cache.Cache
	if ttl > 0 {
		store = cache.New(ttl, ttl*2)
	} else {
		store = cache.New(cache.NoExpiration, 0)
	}
	return &ModelCache{
		name:         name,
		cache:        store,
		refreshAhead: refreshAhead,
		fits:         make(map[string][]fitRef),
		building:     make(map[string]*inflight),
	}
}

// Get returns the newest model for symbols that was fit on or before asOf
// and has not expired at asOf.
func (c *ModelCache) Get(scope string, symbols []models.TradingSymbol, asOf time.Time) (*Model, bool) {
	day := models.Day(asOf)
	c.mu.Lock()
	refs := append([]fitRef(nil), c.fits[setKey(scope, symbols)]...)
	c.mu.Unlock()

	for i := len(refs) - 1; i >= 0; i-- {
		if refs[i].createdAt.After(day) {
			continue
		}
		item, found := c.cache.Get(refs[i].key)
		if !found {
			continue
		}
		model, ok := item.(*Model)
		if !ok || model.IsExpired(asOf) {
			continue
		}
		return model, true
	}
	return nil, false
}

// GetOrBuild returns a valid cached model or fits a new one with build.
// Concurrent callers missing the same key share one build.
func (c *ModelCache) GetOrBuild(ctx context.Context, scope string, symbols []models.TradingSymbol, asOf time.Time, build Builder) (*Model, error) {
	if model, ok := c.Get(scope, symbols, asOf); ok {
		c.record(true)
		if c.refreshAhead > 0 && model.ExpiresAt.Sub(models.Day(asOf)) <= c.refreshAhead {
			c.refresh(scope, symbols, asOf, build)
		}
		return model, nil
	}
	c.record(false)

	key := CacheKey{Scope: scope, Symbols: symbols, AsOf: asOf}
	call, owner := c.join(key.String())
	if owner {
		c.run(ctx, call, key, build)
	}
	select {
	case <-call.done:
		return call.model, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Set stores a model fitted for symbols
func (c *ModelCache) Set(scope string, symbols []models.TradingSymbol, model *Model) {
	key := CacheKey{Scope: scope, Symbols: symbols, AsOf: model.CreatedAt}.String()
	c.cache.SetDefault(key, model)

	c.mu.Lock()
	defer c.mu.Unlock()
	set := setKey(scope, symbols)
	refs := c.fits[set][:0:0]
	for _, ref := range c.fits[set] {
		if ref.key == key {
			continue
		}
		if _, found := c.cache.Get(ref.key); found {
			refs = append(refs, ref)
		}
	}
	refs = append(refs, fitRef{key: key, createdAt: models.Day(model.CreatedAt)})
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].createdAt.Before(refs[j].createdAt) })
	c.fits[set] = refs
}

func (c *ModelCache) join(key string) (*inflight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call, ok := c.building[key]; ok {
		return call, false
	}
	call := &inflight{done: make(chan struct{})}
	c.building[key] = call
	return call, true
}

func (c *ModelCache) run(ctx context.Context, call *inflight, key CacheKey, build Builder) {
	defer func() {
		c.mu.Lock()
		delete(c.building, key.String())
		c.mu.Unlock()
		close(call.done)
	}()
	call.model, call.err = build(ctx, key.Symbols, key.AsOf)
	if call.err == nil && call.model != nil {
		c.Set(key.Scope, key.Symbols, call.model)
	}
}

func (c *ModelCache) refresh(scope string, symbols []models.TradingSymbol, asOf time.Time, build Builder) {
	key := CacheKey{Scope: scope, Symbols: append([]models.TradingSymbol(nil), symbols...), AsOf: asOf}
	call, owner := c.join(key.String())
	if !owner {
		return
	}
	go c.run(context.Background(), call, key, build)
}

func (c *ModelCache) record(hit bool) {
	c.mu.Lock()
	if hit {
		c.hitCount++
	} else {
		c.missCount++
	}
	c.mu.Unlock()
	_, _, ratio := c.Stats()
	metrics.UpdateCacheHitRatio(c.name, ratio)
}

// Stats returns cache statistics
func (c *ModelCache) Stats() (hits, misses uint64, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = c.hitCount
	misses = c.missCount
	total := hits + misses
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of models in cache
func (c *ModelCache) ItemCount() int {
	return c.cache.ItemCount()
}

// Clear flushes the entire cache
func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	c.fits = make(map[string][]fitRef)
	c.hitCount = 0
	c.missCount = 0
}

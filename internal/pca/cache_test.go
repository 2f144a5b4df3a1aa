package pca

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/models"
)

func countingBuilder(calls *int32, validity int) Builder {
	return func(ctx context.Context, symbols []models.TradingSymbol, asOf time.Time) (*Model, error) {
		atomic.AddInt32(calls, 1)
		return &Model{
			CreatedAt: models.Day(asOf),
			ExpiresAt: models.AddDays(asOf, validity),
			Symbols:   symbols,
		}, nil
	}
}

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "sorted symbols and day",
			key:  CacheKey{Symbols: []models.TradingSymbol{"MSFT", "AAPL"}, AsOf: day0.Add(5 * time.Hour)},
			want: "AAPL,MSFT@2024-01-01",
		},
		{
			name: "scope prefix",
			key:  CacheKey{Scope: "30d/0.9/7d", Symbols: []models.TradingSymbol{"AAPL", "MSFT"}, AsOf: day0},
			want: "30d/0.9/7d|AAPL,MSFT@2024-01-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestModelCache_GetOrBuild(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	symbols := []models.TradingSymbol{"AAA", "BBB"}
	var calls int32
	build := countingBuilder(&calls, 2)
	ctx := context.Background()

	first, err := c.GetOrBuild(ctx, "", symbols, day0, build)
	require.NoError(t, err)

	second, err := c.GetOrBuild(ctx, "", []models.TradingSymbol{"BBB", "AAA"}, models.AddDays(day0, 2), build)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	third, err := c.GetOrBuild(ctx, "", symbols, models.AddDays(day0, 3), build)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, models.AddDays(day0, 3), third.CreatedAt)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	hits, misses, ratio := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
	assert.InDelta(t, 1.0/3.0, ratio, 1e-9)
}

func TestModelCache_DoesNotServeFutureModels(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	symbols := []models.TradingSymbol{"AAA"}
	c.Set("", symbols, &Model{CreatedAt: models.AddDays(day0, 5), ExpiresAt: models.AddDays(day0, 10)})

	_, ok := c.Get("", symbols, day0)
	assert.False(t, ok)

	_, ok = c.Get("", symbols, models.AddDays(day0, 6))
	assert.True(t, ok)
}

func TestModelCache_SetKeepsNewest(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	symbols := []models.TradingSymbol{"AAA"}
	newer := &Model{CreatedAt: models.AddDays(day0, 5), ExpiresAt: models.AddDays(day0, 10)}
	c.Set("", symbols, newer)
	c.Set("", symbols, &Model{CreatedAt: day0, ExpiresAt: models.AddDays(day0, 10)})

	got, ok := c.Get("", symbols, models.AddDays(day0, 6))
	require.True(t, ok)
	assert.Same(t, newer, got)
	assert.Equal(t, 2, c.ItemCount())
}

func TestModelCache_ConcurrentMissesShareBuild(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	symbols := []models.TradingSymbol{"AAA"}
	release := make(chan struct{})
	var calls int32
	build := func(ctx context.Context, s []models.TradingSymbol, asOf time.Time) (*Model, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Model{CreatedAt: day0, ExpiresAt: models.AddDays(day0, 1)}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Model, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := c.GetOrBuild(context.Background(), "", symbols, day0, build)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestModelCache_RefreshAheadServesPriorModel(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 48*time.Hour)
	symbols := []models.TradingSymbol{"AAA"}
	prior := &Model{CreatedAt: day0, ExpiresAt: models.AddDays(day0, 3)}
	c.Set("", symbols, prior)

	release := make(chan struct{})
	rebuilt := make(chan struct{})
	build := func(ctx context.Context, s []models.TradingSymbol, asOf time.Time) (*Model, error) {
		<-release
		defer close(rebuilt)
		return &Model{CreatedAt: models.Day(asOf), ExpiresAt: models.AddDays(asOf, 3)}, nil
	}

	got, err := c.GetOrBuild(context.Background(), "", symbols, models.AddDays(day0, 2), build)
	require.NoError(t, err)
	assert.Same(t, prior, got)

	got, err = c.GetOrBuild(context.Background(), "", symbols, models.AddDays(day0, 2), build)
	require.NoError(t, err)
	assert.Same(t, prior, got)

	close(release)
	<-rebuilt
	require.Eventually(t, func() bool {
		m, ok := c.Get("", symbols, models.AddDays(day0, 2))
		return ok && m != prior
	}, time.Second, time.Millisecond)
}

func TestModelCache_ContextCancelled(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	build := func(ctx context.Context, s []models.TradingSymbol, asOf time.Time) (*Model, error) {
		return nil, ctx.Err()
	}

	_, err := c.GetOrBuild(ctx, "", []models.TradingSymbol{"AAA"}, day0, build)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelCache_Clear(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	var calls int32
	_, err := c.GetOrBuild(context.Background(), "", []models.TradingSymbol{"AAA"}, day0, countingBuilder(&calls, 1))
	require.NoError(t, err)

	c.Clear()

	assert.Equal(t, 0, c.ItemCount())
	hits, misses, _ := c.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestModelCache_ScopesDoNotShareModels(t *testing.T) {
	c := NewModelCache("pca_test", time.Hour, 0)
	symbols := []models.TradingSymbol{"AAA", "BBB"}
	var calls int32
	build := countingBuilder(&calls, 5)
	ctx := context.Background()

	short, err := c.GetOrBuild(ctx, "30d/0.9/5d", symbols, day0, build)
	require.NoError(t, err)
	long, err := c.GetOrBuild(ctx, "90d/0.8/5d", symbols, day0, build)
	require.NoError(t, err)

	assert.NotSame(t, short, long)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	again, err := c.GetOrBuild(ctx, "30d/0.9/5d", symbols, models.AddDays(day0, 1), build)
	require.NoError(t, err)
	assert.Same(t, short, again)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestModelCache_EarlierDaysKeepTheirOwnModels(t *testing.T) {
	symbols := []models.TradingSymbol{"AAA"}

	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{name: "expiring", ttl: time.Hour},
		{name: "no expiration", ttl: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewModelCache("pca_test", tt.ttl, 0)
			var calls int32
			build := countingBuilder(&calls, 10)
			ctx := context.Background()

			later, err := c.GetOrBuild(ctx, "", symbols, models.AddDays(day0, 5), build)
			require.NoError(t, err)

			earlier, err := c.GetOrBuild(ctx, "", symbols, day0, build)
			require.NoError(t, err)
			assert.Equal(t, day0, earlier.CreatedAt)

			next, err := c.GetOrBuild(ctx, "", symbols, models.AddDays(day0, 1), build)
			require.NoError(t, err)
			assert.Same(t, earlier, next)

			got, ok := c.Get("", symbols, models.AddDays(day0, 6))
			require.True(t, ok)
			assert.Same(t, later, got)
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		})
	}
}

package strategy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
)

func TestFetchModel_ScopedByFitParameters(t *testing.T) {
	pairs := pairsConfig()
	pcaCfg := pcaConfig()
	pairsScope := modelScope(pairs.AnalysisLengthInDays, pairs.VarianceFraction, pairs.ModelValidityInDays)
	pcaScope := modelScope(pcaCfg.AnalysisLengthInDays, pcaCfg.VarianceFraction, pcaCfg.ModelValidityInDays)
	require.NotEqual(t, pairsScope, pcaScope)

	tests := []struct {
		name       string
		scope      string
		wantBuilds int32
	}{
		{name: "same parameters reuse the cached model", scope: pairsScope, wantBuilds: 0},
		{name: "other parameters fit their own model", scope: pcaScope, wantBuilds: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := pairModelCache()
			seeded, ok := cache.Get(pairsScope, []models.TradingSymbol{"A", "B"}, testDay)
			require.True(t, ok)

			var builds int32
			build := func(ctx context.Context, symbols []models.TradingSymbol, asOf time.Time) (*pca.Model, error) {
				atomic.AddInt32(&builds, 1)
				return &pca.Model{CreatedAt: models.Day(asOf), ExpiresAt: models.AddDays(asOf, 1), Symbols: symbols}, nil
			}
			in := newInput(nil, assets(0, 0, nil))
			in.Models = cache

			got, err := fetchModel(context.Background(), in, tt.scope, []models.TradingSymbol{"B", "A"}, build)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBuilds, atomic.LoadInt32(&builds))
			if tt.wantBuilds == 0 {
				assert.Same(t, seeded, got)
			} else {
				assert.NotSame(t, seeded, got)
			}
		})
	}
}

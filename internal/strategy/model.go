package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
)

// modelBuilder fits PCA models on close prices of the analysis window
func modelBuilder(market datasource.Provider, analysisDays int, varianceFraction float64, validity time.Duration) pca.Builder {
	return func(ctx context.Context, symbols []models.TradingSymbol, asOf time.Time) (*pca.Model, error) {
		day := models.Day(asOf)
		all, err := market.GetAllPrices(ctx, models.AddDays(day, -analysisDays), day)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for model: %w", err)
		}
		wanted := models.SymbolSet(symbols)
		series := make(map[models.TradingSymbol][]models.PricePoint, len(symbols))
		for s, points := range all {
			if _, ok := wanted[s]; ok {
				series[s] = points
			}
		}
		matrix := pca.FilterConstantColumns(pca.BuildMatrix(series))
		model, err := pca.Fit(matrix, varianceFraction, validity)
		if err != nil {
			return nil, fmt.Errorf("failed to fit model: %w", err)
		}
		return model, nil
	}
}

// modelScope names the fit parameters a cached model was built with
func modelScope(analysisDays int, varianceFraction float64, validityDays int) string {
	return fmt.Sprintf("%dd/%g/%dd", analysisDays, varianceFraction, validityDays)
}

// fetchModel returns a valid model for symbols, from the cache when one is attached
func fetchModel(ctx context.Context, in Input, scope string, symbols []models.TradingSymbol, build pca.Builder) (*pca.Model, error) {
	if in.Models == nil {
		return build(ctx, symbols, in.Day())
	}
	return in.Models.GetOrBuild(ctx, scope, symbols, in.Day(), build)
}

func validityDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

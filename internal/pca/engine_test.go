package pca

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// oneFactorMatrix builds prices driven by a single factor so one component
// explains the whole variance.
func oneFactorMatrix() PriceMatrix {
	factor := []float64{1, 3, 2, 5, 4, 6}
	m := PriceMatrix{Symbols: []models.TradingSymbol{"AAA", "BBB", "CCC"}}
	for i, f := range factor {
		m.Dates = append(m.Dates, models.AddDays(day0, i))
		m.Prices = append(m.Prices, []float64{10 + 2*f, 50 - f, 5 + 0.5*f})
	}
	return m
}

func TestSymmetricEigen(t *testing.T) {
	a := [][]float64{{2, 1}, {1, 2}}
	values, vectors := symmetricEigen(a)

	require.Len(t, values, 2)
	assert.InDelta(t, 4.0, values[0]+values[1], 1e-9)
	assert.InDelta(t, 3.0, math.Max(values[0], values[1]), 1e-9)
	assert.InDelta(t, 1.0, math.Min(values[0], values[1]), 1e-9)

	for c := 0; c < 2; c++ {
		for r := 0; r < 2; r++ {
			av := a[r][0]*vectors[0][c] + a[r][1]*vectors[1][c]
			assert.InDelta(t, values[c]*vectors[r][c], av, 1e-9)
		}
	}
	assert.Equal(t, [][]float64{{2, 1}, {1, 2}}, a)
}

func TestFit(t *testing.T) {
	model, err := Fit(oneFactorMatrix(), 0.9, 5*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, model.Components())
	assert.Equal(t, []models.TradingSymbol{"AAA", "BBB", "CCC"}, model.Symbols)
	assert.Len(t, model.Means, 3)
	assert.Len(t, model.StdDevs, 3)
	assert.Equal(t, models.AddDays(day0, 5), model.CreatedAt)
	assert.Equal(t, models.AddDays(day0, 10), model.ExpiresAt)
	assert.InDelta(t, 22.0, model.Means[0], 1e-9)

	var norm float64
	for _, row := range model.Basis {
		norm += row[0] * row[0]
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestFit_Errors(t *testing.T) {
	tests := []struct {
		name     string
		matrix   PriceMatrix
		fraction float64
		wantErr  error
	}{
		{
			name:     "single observation",
			matrix:   PriceMatrix{Symbols: []models.TradingSymbol{"AAA"}, Prices: [][]float64{{1}}},
			fraction: 0.9,
			wantErr:  ErrInsufficientData,
		},
		{
			name: "constant column",
			matrix: PriceMatrix{
				Symbols: []models.TradingSymbol{"AAA", "BBB"},
				Prices:  [][]float64{{1, 7}, {2, 7}, {3, 7}},
			},
			fraction: 0.9,
			wantErr:  ErrZeroVariance,
		},
		{
			name: "ragged row",
			matrix: PriceMatrix{
				Symbols: []models.TradingSymbol{"AAA", "BBB"},
				Prices:  [][]float64{{1, 2}, {2}},
			},
			fraction: 0.9,
			wantErr:  ErrShapeMismatch,
		},
		{
			name:     "no symbols",
			matrix:   PriceMatrix{},
			fraction: 0.9,
			wantErr:  ErrShapeMismatch,
		},
		{
			name:     "invalid fraction",
			matrix:   oneFactorMatrix(),
			fraction: 1.5,
			wantErr:  ErrInvalidVarianceFraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.matrix, tt.fraction, time.Hour)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScoreSymbols_RoundTrip(t *testing.T) {
	matrix := oneFactorMatrix()
	model, err := Fit(matrix, 0.9, time.Hour)
	require.NoError(t, err)

	for _, row := range matrix.Prices {
		latest := map[models.TradingSymbol]float64{}
		for j, s := range matrix.Symbols {
			latest[s] = row[j]
		}
		scores := ScoreSymbols(model, latest)
		require.Len(t, scores, 3)
		for _, score := range scores {
			assert.InDelta(t, 0.0, score.NormalizedDifference, 1e-6, score.Symbol)
		}
	}
}

func TestScoreSymbols_FullBasisRoundTrip(t *testing.T) {
	matrix := PriceMatrix{
		Symbols: []models.TradingSymbol{"AAA", "BBB", "CCC"},
		Prices: [][]float64{
			{10, 20, 30},
			{11, 19, 33},
			{13, 22, 31},
			{12, 18, 35},
			{15, 21, 32},
		},
	}
	model, err := Fit(matrix, 1.0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, model.Components())

	latest := map[models.TradingSymbol]float64{"AAA": 13, "BBB": 22, "CCC": 31}
	for _, score := range ScoreSymbols(model, latest) {
		assert.InDelta(t, 0.0, score.NormalizedDifference, 1e-6)
	}
}

func TestScoreSymbols_PartialCoverage(t *testing.T) {
	model, err := Fit(oneFactorMatrix(), 0.9, time.Hour)
	require.NoError(t, err)

	latest := map[models.TradingSymbol]float64{"CCC": 9, "AAA": 30, "ZZZ": 1}
	scores := ScoreSymbols(model, latest)
	require.Len(t, scores, 2)
	assert.Equal(t, models.TradingSymbol("AAA"), scores[0].Symbol)
	assert.Equal(t, models.TradingSymbol("CCC"), scores[1].Symbol)

	zA := (30 - model.Means[0]) / model.StdDevs[0]
	zC := (9 - model.Means[2]) / model.StdDevs[2]
	coef := model.Basis[0][0]*zA + model.Basis[2][0]*zC
	assert.InDelta(t, zA-model.Basis[0][0]*coef, scores[0].NormalizedDifference, 1e-9)
	assert.InDelta(t, zC-model.Basis[2][0]*coef, scores[1].NormalizedDifference, 1e-9)
}

func TestScoreSymbols_NoOverlap(t *testing.T) {
	model, err := Fit(oneFactorMatrix(), 0.9, time.Hour)
	require.NoError(t, err)

	assert.Empty(t, ScoreSymbols(model, map[models.TradingSymbol]float64{"ZZZ": 1}))
	assert.Nil(t, ScoreSymbols(nil, nil))
}

func TestModel_IsExpired(t *testing.T) {
	model := &Model{CreatedAt: day0, ExpiresAt: models.AddDays(day0, 3)}

	assert.False(t, model.IsExpired(models.AddDays(day0, 3)))
	assert.True(t, model.IsExpired(models.AddDays(day0, 4)))
}

func TestBuildMatrix(t *testing.T) {
	point := func(i int, close float64) models.PricePoint {
		return models.PricePoint{Date: models.AddDays(day0, i), Close: decimal.NewFromFloat(close)}
	}
	series := map[models.TradingSymbol][]models.PricePoint{
		"MSFT": {point(0, 10), point(1, 11), point(2, 12)},
		"AAPL": {point(0, 5), point(1, 4), point(2, 6)},
		"FLAT": {point(0, 3), point(1, 3), point(2, 3)},
		"NEW":  {point(1, 1), point(2, 2)},
	}

	m := BuildMatrix(series)

	assert.Equal(t, []models.TradingSymbol{"AAPL", "MSFT"}, m.Symbols)
	require.Len(t, m.Dates, 3)
	assert.Equal(t, [][]float64{{5, 10}, {4, 11}, {6, 12}}, m.Prices)
}

func TestBuildMatrix_Empty(t *testing.T) {
	m := BuildMatrix(nil)
	assert.Empty(t, m.Symbols)
	assert.Empty(t, m.Prices)
}

func TestLatestCloses(t *testing.T) {
	series := map[models.TradingSymbol][]models.PricePoint{
		"AAA": {
			{Date: day0, Close: decimal.NewFromInt(1)},
			{Date: models.AddDays(day0, 2), Close: decimal.NewFromInt(3)},
		},
		"BBB": {{Date: models.AddDays(day0, 5), Close: decimal.NewFromInt(9)}},
	}

	latest := LatestCloses(series, models.AddDays(day0, 1))
	assert.Equal(t, map[models.TradingSymbol]float64{"AAA": 1}, latest)
}

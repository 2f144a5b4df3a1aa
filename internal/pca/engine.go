// Package pca fits principal-component models over price histories and
// scores symbols against them.
package pca

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yourusername/trading-bot/internal/models"
)

var (
	ErrInsufficientData        = errors.New("pca: at least two observations are required")
	ErrZeroVariance            = errors.New("pca: column has zero variance")
	ErrShapeMismatch           = errors.New("pca: price matrix shape mismatch")
	ErrInvalidVarianceFraction = errors.New("pca: variance fraction must be in (0, 1]")
)

// varianceTolerance absorbs rounding in the accumulated eigenvalue sum
const varianceTolerance = 1e-9

// PriceMatrix holds aligned prices: one row per date, one column per symbol
type PriceMatrix struct {
	Symbols []models.TradingSymbol
	Dates   []time.Time
	Prices  [][]float64
}

// Model is a frozen principal-component decomposition.
// Symbols, Means, StdDevs and Basis rows are index-aligned.
type Model struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Symbols   []models.TradingSymbol
	Means     []float64
	StdDevs   []float64
	Basis     [][]float64
}

// Score is the normalized difference of a symbol's observed price
type Score struct {
	Symbol               models.TradingSymbol
	NormalizedDifference float64
}

// Components returns the number of retained principal components
func (m *Model) Components() int {
	if len(m.Basis) == 0 {
		return 0
	}
	return len(m.Basis[0])
}

// IsExpired reports whether the model must no longer be used on day
func (m *Model) IsExpired(day time.Time) bool {
	return models.Day(day).After(m.ExpiresAt)
}

// Fit standardizes every column and keeps the smallest set of principal
// components whose variance reaches varianceFraction of the total.
// Columns must not be constant; see FilterConstantColumns.
func Fit(matrix PriceMatrix, varianceFraction float64, validity time.Duration) (*Model, error) {
	if varianceFraction <= 0 || varianceFraction > 1 {
		return nil, ErrInvalidVarianceFraction
	}
	p := len(matrix.Symbols)
	n := len(matrix.Prices)
	if p == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrShapeMismatch)
	}
	if len(matrix.Dates) != 0 && len(matrix.Dates) != n {
		return nil, fmt.Errorf("%w: %d dates for %d rows", ErrShapeMismatch, len(matrix.Dates), n)
	}
	if n < 2 {
		return nil, ErrInsufficientData
	}
	for i, row := range matrix.Prices {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrShapeMismatch, i, len(row), p)
		}
	}

	means, stdDevs := columnMoments(matrix.Prices)
	for j, sd := range stdDevs {
		if sd == 0 || math.IsNaN(sd) {
			return nil, fmt.Errorf("%w: %s", ErrZeroVariance, matrix.Symbols[j])
		}
	}

	z := make([][]float64, n)
	for i, row := range matrix.Prices {
		z[i] = make([]float64, p)
		for j, price := range row {
			z[i][j] = (price - means[j]) / stdDevs[j]
		}
	}

	cov := make([][]float64, p)
	for a := 0; a < p; a++ {
		cov[a] = make([]float64, p)
	}
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += z[i][a] * z[i][b]
			}
			cov[a][b] = sum / float64(n-1)
			cov[b][a] = cov[a][b]
		}
	}

	values, vectors := symmetricEigen(cov)
	order := make([]int, p)
	var total float64
	for i := range order {
		order[i] = i
		total += values[i]
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	k := 0
	var accumulated float64
	for k < p {
		accumulated += values[order[k]]
		k++
		if accumulated >= varianceFraction*total-varianceTolerance {
			break
		}
	}

	basis := make([][]float64, p)
	for i := 0; i < p; i++ {
		basis[i] = make([]float64, k)
		for c := 0; c < k; c++ {
			basis[i][c] = vectors[i][order[c]]
		}
	}

	var createdAt time.Time
	if len(matrix.Dates) > 0 {
		createdAt = models.Day(matrix.Dates[len(matrix.Dates)-1])
	}

	return &Model{
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(validity),
		Symbols:   append([]models.TradingSymbol(nil), matrix.Symbols...),
		Means:     means,
		StdDevs:   stdDevs,
		Basis:     basis,
	}, nil
}

// ScoreSymbols returns, in model order, the normalized difference of every
// modeled symbol present in latest. Other symbols are skipped.
func ScoreSymbols(model *Model, latest map[models.TradingSymbol]float64) []Score {
	if model == nil {
		return nil
	}
	idx := make([]int, 0, len(model.Symbols))
	for i, s := range model.Symbols {
		if _, ok := latest[s]; ok {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}

	k := model.Components()
	z := make([]float64, len(idx))
	for r, i := range idx {
		z[r] = (latest[model.Symbols[i]] - model.Means[i]) / model.StdDevs[i]
	}

	coefficients := make([]float64, k)
	for c := 0; c < k; c++ {
		for r, i := range idx {
			coefficients[c] += model.Basis[i][c] * z[r]
		}
	}

	scores := make([]Score, len(idx))
	for r, i := range idx {
		var reconstructed float64
		for c := 0; c < k; c++ {
			reconstructed += model.Basis[i][c] * coefficients[c]
		}
		scores[r] = Score{
			Symbol:               model.Symbols[i],
			NormalizedDifference: z[r] - reconstructed,
		}
	}
	return scores
}

// columnMoments returns per-column means and sample standard deviations
func columnMoments(rows [][]float64) ([]float64, []float64) {
	n := len(rows)
	p := len(rows[0])
	means := make([]float64, p)
	for _, row := range rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	stdDevs := make([]float64, p)
	for _, row := range rows {
		for j, v := range row {
			d := v - means[j]
			stdDevs[j] += d * d
		}
	}
	for j := range stdDevs {
		stdDevs[j] = math.Sqrt(stdDevs[j] / float64(n-1))
	}
	return means, stdDevs
}

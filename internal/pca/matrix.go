package pca

import (
	"sort"
	"time"

	"github.com/yourusername/trading-bot/internal/models"
)

// BuildMatrix aligns close prices into a PriceMatrix. Only symbols whose
// history has the longest length are kept, restricted to the dates they all
// share, and constant columns are dropped.
func BuildMatrix(series map[models.TradingSymbol][]models.PricePoint) PriceMatrix {
	longest := 0
	for _, points := range series {
		if len(points) > longest {
			longest = len(points)
		}
	}
	if longest == 0 {
		return PriceMatrix{}
	}

	symbols := make([]models.TradingSymbol, 0, len(series))
	for s, points := range series {
		if len(points) == longest {
			symbols = append(symbols, s)
		}
	}
	models.SortSymbols(symbols)

	counts := make(map[time.Time]int, longest)
	for _, s := range symbols {
		for _, p := range series[s] {
			counts[models.Day(p.Date)]++
		}
	}
	dates := make([]time.Time, 0, longest)
	for d, c := range counts {
		if c == len(symbols) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	row := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}
	prices := make([][]float64, len(dates))
	for i := range prices {
		prices[i] = make([]float64, len(symbols))
	}
	for j, s := range symbols {
		for _, p := range series[s] {
			if i, ok := row[models.Day(p.Date)]; ok {
				prices[i][j] = p.Close.InexactFloat64()
			}
		}
	}

	return FilterConstantColumns(PriceMatrix{Symbols: symbols, Dates: dates, Prices: prices})
}

// FilterConstantColumns removes symbols whose prices never change
func FilterConstantColumns(m PriceMatrix) PriceMatrix {
	if len(m.Prices) == 0 {
		return m
	}
	keep := make([]int, 0, len(m.Symbols))
	for j := range m.Symbols {
		first := m.Prices[0][j]
		for i := 1; i < len(m.Prices); i++ {
			if m.Prices[i][j] != first {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == len(m.Symbols) {
		return m
	}

	out := PriceMatrix{
		Symbols: make([]models.TradingSymbol, len(keep)),
		Dates:   m.Dates,
		Prices:  make([][]float64, len(m.Prices)),
	}
	for c, j := range keep {
		out.Symbols[c] = m.Symbols[j]
	}
	for i, row := range m.Prices {
		out.Prices[i] = make([]float64, len(keep))
		for c, j := range keep {
			out.Prices[i][c] = row[j]
		}
	}
	return out
}

// LatestCloses extracts the last close on or before day for every symbol
func LatestCloses(series map[models.TradingSymbol][]models.PricePoint, day time.Time) map[models.TradingSymbol]float64 {
	latest := make(map[models.TradingSymbol]float64, len(series))
	for s, points := range series {
		if p, ok := models.LastOnOrBefore(points, day); ok {
			latest[s] = p.Close.InexactFloat64()
		}
	}
	return latest
}

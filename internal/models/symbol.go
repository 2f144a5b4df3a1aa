package models

import (
	"sort"
	"time"
)

// TradingSymbol is an exchange ticker. Comparison is case-sensitive.
type TradingSymbol string

// String returns the raw ticker value
func (s TradingSymbol) String() string {
	return string(s)
}

// SortSymbols sorts symbols lexically in place and returns the slice
func SortSymbols(symbols []TradingSymbol) []TradingSymbol {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols
}

// SymbolSet builds a lookup set from a list of symbols
func SymbolSet(symbols []TradingSymbol) map[TradingSymbol]struct{} {
	set := make(map[TradingSymbol]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

// Day truncates a timestamp to midnight UTC of its calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves a calendar day forward (or backward) by n days
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}

// DayPtr returns a pointer to the truncated day, for optional state fields
func DayPtr(t time.Time) *time.Time {
	d := Day(t)
	return &d
}

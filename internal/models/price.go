package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one trading day of a symbol's price history
type PricePoint struct {
	Date   time.Time       `db:"date" json:"date"`
	Open   decimal.Decimal `db:"open" json:"open"`
	Close  decimal.Decimal `db:"close" json:"close"`
	High   decimal.Decimal `db:"high" json:"high"`
	Low    decimal.Decimal `db:"low" json:"low"`
	Volume decimal.Decimal `db:"volume" json:"volume"`
}

// LastOnOrBefore returns the latest point dated on or before day.
// The series must be ordered by date.
func LastOnOrBefore(series []PricePoint, day time.Time) (PricePoint, bool) {
	day = Day(day)
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].Date.After(day) {
			return series[i], true
		}
	}
	return PricePoint{}, false
}

// PointOn returns the point dated exactly on day
func PointOn(series []PricePoint, day time.Time) (PricePoint, bool) {
	day = Day(day)
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Date.Equal(day) {
			return series[i], true
		}
		if series[i].Date.Before(day) {
			break
		}
	}
	return PricePoint{}, false
}

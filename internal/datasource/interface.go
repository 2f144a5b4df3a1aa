package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/trading-bot/internal/models"
)

// Provider defines the interface for fetching daily price history
type Provider interface {
	// GetPrices returns the points of symbol dated within [start, end], ordered by date.
	// Days without trading are omitted, never zero-filled.
	GetPrices(ctx context.Context, symbol models.TradingSymbol, start, end time.Time) ([]models.PricePoint, error)

	// GetAllPrices returns the points of every known symbol with data within [start, end]
	GetAllPrices(ctx context.Context, start, end time.Time) (map[models.TradingSymbol][]models.PricePoint, error)

	// Name returns the name of the data source
	Name() string
}

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

func (e DataSourceError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
)

var (
	ErrNoPriceData = errors.New("no price data available")
)

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// LastPrice returns the latest point of symbol on or before day, looking
// back at most lookbackDays calendar days.
func LastPrice(ctx context.Context, p Provider, symbol models.TradingSymbol, day time.Time, lookbackDays int) (models.PricePoint, error) {
	points, err := p.GetPrices(ctx, symbol, models.AddDays(day, -lookbackDays), models.Day(day))
	if err != nil {
		return models.PricePoint{}, err
	}
	point, ok := models.LastOnOrBefore(points, day)
	if !ok {
		return models.PricePoint{}, NewDataSourceError(p.Name(), ErrCodeNotFound, "no price for "+symbol.String(), ErrNoPriceData)
	}
	return point, nil
}

// filterRange returns the sub-slice of an ordered series within [start, end]
func filterRange(series []models.PricePoint, start, end time.Time) []models.PricePoint {
	start, end = models.Day(start), models.Day(end)
	lo := 0
	for lo < len(series) && series[lo].Date.Before(start) {
		lo++
	}
	hi := lo
	for hi < len(series) && !series[hi].Date.After(end) {
		hi++
	}
	if lo == hi {
		return nil
	}
	out := make([]models.PricePoint, hi-lo)
	copy(out, series[lo:hi])
	return out
}

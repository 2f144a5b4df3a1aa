package datasource

import (
	"fmt"
	"strings"

	"github.com/yourusername/trading-bot/internal/models"
)

// ValidatePricePoint checks a daily bar for required fields and price
// constraints. It returns every violation found.
func ValidatePricePoint(p models.PricePoint) []string {
	var errors []string

	if p.Date.IsZero() {
		errors = append(errors, "date is required")
	}
	if !p.Close.IsPositive() {
		errors = append(errors, fmt.Sprintf("close must be positive, got %s", p.Close))
	}
	if p.Low.IsNegative() {
		errors = append(errors, fmt.Sprintf("low cannot be negative, got %s", p.Low))
	}
	if p.High.LessThan(p.Low) {
		errors = append(errors, fmt.Sprintf("high %s is below low %s", p.High, p.Low))
	}
	if p.Close.LessThan(p.Low) || p.Close.GreaterThan(p.High) {
		errors = append(errors, fmt.Sprintf("close %s outside [%s, %s]", p.Close, p.Low, p.High))
	}
	if p.Open.LessThan(p.Low) || p.Open.GreaterThan(p.High) {
		errors = append(errors, fmt.Sprintf("open %s outside [%s, %s]", p.Open, p.Low, p.High))
	}
	if p.Volume.IsNegative() {
		errors = append(errors, "volume cannot be negative")
	}

	return errors
}

// validationError wraps the violations of a bar into an invalid-data error
func validationError(source string, symbol models.TradingSymbol, p models.PricePoint, violations []string) error {
	msg := fmt.Sprintf("invalid bar for %s on %s: %s", symbol, p.Date.Format("2006-01-02"), strings.Join(violations, "; "))
	return NewDataSourceError(source, ErrCodeInvalidData, msg, nil)
}

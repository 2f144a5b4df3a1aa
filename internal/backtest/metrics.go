package backtest

import (
	"encoding/json"
	"math"
	"time"

	"github.com/yourusername/trading-bot/internal/models"
)

// tradingDaysPerYear annualizes daily ratios
const tradingDaysPerYear = 252

// Metrics represents backtest performance metrics
type Metrics struct {
	TotalReturn  float64   `json:"total_return"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	SharpeRatio  float64   `json:"sharpe_ratio"`
	SortinoRatio float64   `json:"sortino_ratio"`
	Volatility   float64   `json:"volatility"`
	DailyReturns int       `json:"daily_returns"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// TotalReturn is the relative change between the first and the last
// snapshot. It is 0 with fewer than two snapshots or a zero first equity.
func TotalReturn(snapshots []*models.AssetsSnapshot) float64 {
	if len(snapshots) < 2 {
		return 0
	}
	return models.RelativeReturn(snapshots[0].Equity, snapshots[len(snapshots)-1].Equity)
}

// CalculateMetrics derives performance metrics from the snapshots of a
// backtest, ordered by creation time
func CalculateMetrics(snapshots []*models.AssetsSnapshot) Metrics {
	metrics := Metrics{TotalReturn: TotalReturn(snapshots)}
	if len(snapshots) == 0 {
		return metrics
	}
	metrics.StartDate = snapshots[0].CreatedAt
	metrics.EndDate = snapshots[len(snapshots)-1].CreatedAt

	curve := NewEquityCurve(snapshots)
	returns := curve.GetReturns()
	metrics.MaxDrawdown = curve.MaxDrawdown()
	metrics.SharpeRatio = calculateSharpeRatio(returns)
	metrics.SortinoRatio = calculateSortinoRatio(returns)
	metrics.Volatility = stddev(returns)
	metrics.DailyReturns = len(returns)
	return metrics
}

// ToJSON exports metrics to JSON
func (m Metrics) ToJSON() string {
	data, _ := json.Marshal(m)
	return string(data)
}

func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	std := stddev(returns)
	if std == 0 {
		return 0
	}
	return average(returns) / std * math.Sqrt(tradingDaysPerYear)
}

func calculateSortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	std := downsideStddev(returns)
	if std == 0 {
		return 0
	}
	return average(returns) / std * math.Sqrt(tradingDaysPerYear)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	return mean / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func downsideStddev(values []float64) float64 {
	negatives := make([]float64, 0)
	for _, v := range values {
		if v < 0 {
			negatives = append(negatives, v)
		}
	}
	return stddev(negatives)
}

package backtest

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/yourusername/trading-bot/internal/models"
)

func snapshotsOf(equity ...float64) []*models.AssetsSnapshot {
	snapshots := make([]*models.AssetsSnapshot, len(equity))
	for i, e := range equity {
		snapshots[i] = &models.AssetsSnapshot{
			CreatedAt: models.AddDays(simStart, i),
			Equity:    decimal.NewFromFloat(e),
		}
	}
	return snapshots
}

func TestTotalReturn(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{name: "gain", equity: []float64{100, 105, 110}, want: 0.10},
		{name: "loss", equity: []float64{200, 150}, want: -0.25},
		{name: "single snapshot", equity: []float64{100}, want: 0},
		{name: "no snapshots", equity: nil, want: 0},
		{name: "zero first equity", equity: []float64{0, 100}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TotalReturn(snapshotsOf(tt.equity...)), 1e-12)
		})
	}
}

func TestCalculateMetrics(t *testing.T) {
	m := CalculateMetrics(snapshotsOf(100, 120, 90, 108))

	assert.InDelta(t, 0.08, m.TotalReturn, 1e-12)
	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 3, m.DailyReturns)
	assert.True(t, m.StartDate.Equal(simStart))
	assert.True(t, m.EndDate.Equal(models.AddDays(simStart, 3)))

	returns := []float64{0.2, -0.25, 0.2}
	mean := (0.2 - 0.25 + 0.2) / 3
	assert.InDelta(t, mean/stddev(returns)*math.Sqrt(252), m.SharpeRatio, 1e-9)
	assert.Greater(t, m.SharpeRatio, 0.0)
}

func TestCalculateMetrics_Flat(t *testing.T) {
	m := CalculateMetrics(snapshotsOf(100, 100, 100))

	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
	assert.Equal(t, 2, m.DailyReturns)
}

func TestCalculateMetrics_Empty(t *testing.T) {
	m := CalculateMetrics(nil)

	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.DailyReturns)
	assert.True(t, m.StartDate.IsZero())
}

func TestEquityCurve(t *testing.T) {
	curve := NewEquityCurve(snapshotsOf(100, 120, 90))

	assert.Equal(t, []float64{0, 20, -30}, []float64{curve[0].DailyPnL, curve[1].DailyPnL, curve[2].DailyPnL})
	assert.InDelta(t, 0.25, curve[2].Drawdown, 1e-12)
	assert.Equal(t, "time,value,drawdown,daily_pnl\n"+
		"2024-06-10,100.000000,0.000000,0.000000\n"+
		"2024-06-11,120.000000,0.000000,20.000000\n"+
		"2024-06-12,90.000000,0.250000,-30.000000\n", curve.ToCSV())
}

func TestGenerateConsoleReport(t *testing.T) {
	end := simEnd
	b := &models.Backtest{
		Strategy:        "losers",
		SimulationStart: simStart,
		SimulationEnd:   end,
		ExecutionEnd:    &end,
		InitialCash:     decimal.NewFromInt(10000),
		State:           models.BacktestStateFinished,
		StateDetails:    DetailsFinished,
		TotalReturn:     0.1234,
	}

	report := GenerateConsoleReport(b, Metrics{SharpeRatio: 1.5, MaxDrawdown: 0.05, DailyReturns: 4})

	assert.Contains(t, report, "Period: 2024-06-10 to 2024-06-14")
	assert.Contains(t, report, "State: finished (Finished successfully)")
	assert.Contains(t, report, "Initial Cash: 10000.00")
	assert.Contains(t, report, "Total Return: 12.34%")
	assert.Contains(t, report, "Max Drawdown: 5.00%")
}

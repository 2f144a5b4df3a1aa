package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/trading-bot/internal/models"
)

// GenerateConsoleReport formats a backtest and its metrics for terminal output
func GenerateConsoleReport(b *models.Backtest, m Metrics) string {
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("ID: %s\n", b.ID))
	builder.WriteString(fmt.Sprintf("Strategy: %s\n", b.Strategy))
	builder.WriteString(fmt.Sprintf("Period: %s to %s\n",
		b.SimulationStart.Format("2006-01-02"), b.SimulationEnd.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("State: %s (%s)\n", b.State, b.StateDetails))
	builder.WriteString(fmt.Sprintf("Initial Cash: %s\n", b.InitialCash.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f%%\n", b.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", m.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Sortino Ratio: %.2f\n", m.SortinoRatio))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", m.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Daily Returns: %d\n", m.DailyReturns))
	return builder.String()
}

// GenerateCSVExport writes the equity curve for spreadsheets
func GenerateCSVExport(curve EquityCurve, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(curve.ToCSV()), 0o644)
}

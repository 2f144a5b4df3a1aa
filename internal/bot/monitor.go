package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
)

// MonitorMetrics tracks monitoring statistics
type MonitorMetrics struct {
	SnapshotsObserved int64     `json:"snapshots_observed"`
	ReportsGenerated  int64     `json:"reports_generated"`
	ReportErrors      int64     `json:"report_errors"`
	LastUpdateTime    time.Time `json:"last_update_time"`
}

// PerformancePoint is the realized return at one live snapshot
type PerformancePoint struct {
	Date   time.Time       `json:"date"`
	Equity decimal.Decimal `json:"equity"`
	Return float64         `json:"return"`
}

// PerformanceReport is the realized equity curve over a period, relative to
// the earliest live snapshot
type PerformanceReport struct {
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Baseline    decimal.Decimal    `json:"baseline"`
	Points      []PerformancePoint `json:"points"`
	TotalReturn float64            `json:"total_return"`
}

// Monitor tracks live account performance
type Monitor struct {
	snapshots      repository.AssetsSnapshotRepository
	logger         *logrus.Logger
	strategyLogger *logger.StrategyLogger
	metrics        MonitorMetrics
	peakEquity     decimal.Decimal
	mu             sync.RWMutex
}

// NewMonitor creates a new performance monitor
func NewMonitor(snapshots repository.AssetsSnapshotRepository, log *logrus.Logger) *Monitor {
	return &Monitor{
		snapshots:      snapshots,
		logger:         log,
		strategyLogger: logger.NewStrategyLogger(log),
	}
}

// Observe updates the account gauges with a live snapshot and logs drawdowns
// from the running equity peak
func (m *Monitor) Observe(strategyName string, snapshot *models.AssetsSnapshot) {
	if snapshot == nil {
		return
	}
	metrics.UpdateAccount(snapshot.Equity.InexactFloat64(), snapshot.Cash.Available.InexactFloat64())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.SnapshotsObserved++
	m.metrics.LastUpdateTime = time.Now()
	if snapshot.Equity.GreaterThan(m.peakEquity) {
		m.peakEquity = snapshot.Equity
		return
	}
	if m.peakEquity.IsPositive() && snapshot.Equity.LessThan(m.peakEquity) {
		drawdown := -models.RelativeReturn(m.peakEquity, snapshot.Equity)
		m.strategyLogger.LogStrategyDrawdown(strategyName, drawdown*100,
			m.peakEquity.InexactFloat64(), snapshot.Equity.InexactFloat64())
	}
}

// PerformanceReport computes realized returns of live snapshots taken within
// [start, end] against the earliest live snapshot
func (m *Monitor) PerformanceReport(ctx context.Context, start, end time.Time) (*PerformanceReport, error) {
	report := &PerformanceReport{Start: start, End: end, Points: []PerformancePoint{}}

	earliest, err := m.snapshots.Earliest(ctx, nil)
	if errors.Is(err, models.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		m.recordError()
		return nil, fmt.Errorf("failed to get earliest snapshot: %w", err)
	}
	report.Baseline = earliest.Equity

	snapshots, err := m.snapshots.ListByTimeRange(ctx, nil, start, end)
	if err != nil {
		m.recordError()
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	for _, s := range snapshots {
		report.Points = append(report.Points, PerformancePoint{
			Date:   s.CreatedAt,
			Equity: s.Equity,
			Return: models.RelativeReturn(report.Baseline, s.Equity),
		})
	}
	if n := len(report.Points); n > 0 {
		report.TotalReturn = report.Points[n-1].Return
	}

	m.mu.Lock()
	m.metrics.ReportsGenerated++
	m.metrics.LastUpdateTime = time.Now()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"start":        start.Format("2006-01-02"),
		"end":          end.Format("2006-01-02"),
		"points":       len(report.Points),
		"total_return": report.TotalReturn,
	}).Debug("Performance report generated")
	return report, nil
}

// Metrics returns a copy of the monitoring statistics
func (m *Monitor) Metrics() MonitorMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

func (m *Monitor) recordError() {
	m.mu.Lock()
	m.metrics.ReportErrors++
	m.mu.Unlock()
}

// Package main provides the entry point for the backtesting CLI tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xhit/go-str2duration/v2"

	"github.com/yourusername/trading-bot/internal/backtest"
	"github.com/yourusername/trading-bot/internal/bot"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/events"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

const dateLayout = "2006-01-02"

type options struct {
	configPath   string
	strategyName string
	startDate    string
	endDate      string
	period       string
	initialCash  float64
	usePredictor bool
	description  string
	csvOutput    string
	inMemory     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config/config.yaml", "Path to config file")
	flag.StringVar(&opts.strategyName, "strategy", "", "Strategy to test (defaults to the selected one)")
	flag.StringVar(&opts.startDate, "start-date", "", "Override start date (YYYY-MM-DD)")
	flag.StringVar(&opts.endDate, "end-date", "", "Override end date (YYYY-MM-DD)")
	flag.StringVar(&opts.period, "period", "", "Simulated period ending at the end date, e.g. 90d or 12w")
	flag.Float64Var(&opts.initialCash, "initial-cash", 0, "Override initial cash")
	flag.BoolVar(&opts.usePredictor, "use-predictor", false, "Let strategies use the price predictor")
	flag.StringVar(&opts.description, "description", "", "Free-form backtest description")
	flag.StringVar(&opts.csvOutput, "csv", "", "Write the equity curve to this CSV file")
	flag.BoolVar(&opts.inMemory, "in-memory", false, "Keep results in memory instead of the database")
	flag.Parse()

	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := loadConfigWithSecrets(ctx, opts.configPath)
	log := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	metrics.InitRegistry()

	req, err := buildRequest(cfg, opts, time.Now())
	if err != nil {
		log.Fatalf("Invalid backtest request: %v", err)
	}

	repos, closeRepos := buildRepositories(ctx, cfg, opts.inMemory, log)
	defer closeRepos()

	executor := buildExecutor(ctx, cfg, repos, log)
	defer executor.Shutdown()

	id, err := executor.StartNew(ctx, req)
	if err != nil {
		log.Fatalf("Failed to start backtest: %v", err)
	}
	log.WithFields(logrus.Fields{
		"backtest_id": id,
		"start":       req.Start.Format(dateLayout),
		"end":         req.End.Format(dateLayout),
	}).Info("Backtest started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info("Cancelling backtest")
			if err := executor.CancelBacktest(ctx, id); err != nil {
				log.WithError(err).Warn("Failed to cancel backtest")
			}
		case <-ctx.Done():
		}
	}()

	result, err := executor.Wait(ctx, id)
	if err != nil {
		log.Fatalf("Failed to wait for backtest: %v", err)
	}

	snapshots, err := repos.AssetsSnapshot.ListByBacktest(ctx, &id)
	if err != nil {
		log.Fatalf("Failed to load snapshots: %v", err)
	}

	fmt.Print(backtest.GenerateConsoleReport(result, backtest.CalculateMetrics(snapshots)))

	if opts.csvOutput != "" {
		if err := backtest.GenerateCSVExport(backtest.NewEquityCurve(snapshots), opts.csvOutput); err != nil {
			log.Fatalf("Failed to export equity curve: %v", err)
		}
		log.WithField("path", opts.csvOutput).Info("Equity curve exported")
	}

	if result.State == models.BacktestStateError {
		os.Exit(1)
	}
}

func loadConfigWithSecrets(ctx context.Context, path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Secrets.Enabled {
		if err := config.LoadSecretsFromAWS(ctx, cfg); err != nil {
			logrus.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// buildRequest resolves the simulated range from the config and the flag
// overrides. A period counts back from the end date.
func buildRequest(cfg *config.Config, opts options, now time.Time) (backtest.Request, error) {
	end := models.Day(now)
	if cfg.Backtest.EndDate != "" {
		parsed, err := time.Parse(dateLayout, cfg.Backtest.EndDate)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid configured end date: %w", err)
		}
		end = parsed
	}
	if opts.endDate != "" {
		parsed, err := time.Parse(dateLayout, opts.endDate)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid end date: %w", err)
		}
		end = parsed
	}

	var start time.Time
	if cfg.Backtest.StartDate != "" {
		parsed, err := time.Parse(dateLayout, cfg.Backtest.StartDate)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid configured start date: %w", err)
		}
		start = parsed
	}
	if opts.period != "" {
		period, err := str2duration.ParseDuration(opts.period)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid period: %w", err)
		}
		start = models.Day(end.Add(-period))
	}
	if opts.startDate != "" {
		parsed, err := time.Parse(dateLayout, opts.startDate)
		if err != nil {
			return backtest.Request{}, fmt.Errorf("invalid start date: %w", err)
		}
		start = parsed
	}

	cash := cfg.Backtest.InitialCash
	if opts.initialCash > 0 {
		cash = opts.initialCash
	}

	return backtest.Request{
		Start:        start,
		End:          end,
		InitialCash:  decimal.NewFromFloat(cash),
		UsePredictor: opts.usePredictor,
		Description:  opts.description,
		Strategy:     opts.strategyName,
	}, nil
}

func buildRepositories(ctx context.Context, cfg *config.Config, inMemory bool, log *logrus.Logger) (*repository.Repositories, func()) {
	if inMemory {
		return repository.NewMemoryRepositories(), func() {}
	}
	db, err := database.Initialize(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repos, err := repository.NewRepositories(db)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to create repositories: %v", err)
	}
	return repos, db.Close
}

func buildExecutor(ctx context.Context, cfg *config.Config, repos *repository.Repositories, log *logrus.Logger) *backtest.Executor {
	market, err := datasource.NewFactory(cfg, log).Create()
	if err != nil {
		log.Fatalf("Failed to create market data provider: %v", err)
	}
	selector, err := strategy.NewDefaultSelector(cfg.Strategy, log)
	if err != nil {
		log.Fatalf("Failed to create strategy selector: %v", err)
	}
	if err := bot.RestoreSelection(ctx, selector, repos.StrategySelection, log); err != nil {
		log.Fatalf("Failed to restore strategy selection: %v", err)
	}
	publisher := events.NewPublisher(cfg.Events, log)
	// each run fits into its own model cache
	ticks := bot.NewTickExecutor(repos, selector, nil, cfg.MarketData.Universe(), publisher, log)
	return backtest.NewExecutor(cfg.Backtest, repos, selector, ticks, market, publisher, log)
}

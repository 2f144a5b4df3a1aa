// Package main provides the entry point for the trading bot.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/bot"
	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/events"
	"github.com/yourusername/trading-bot/internal/health"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/pca"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

// Version is set via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A missing dotenv file is not an error
	_ = godotenv.Load(*envFile)

	cfg := loadConfigWithSecrets(ctx, *configPath)

	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
		"version":     Version,
	}).Info("Trading bot starting")

	metrics.InitRegistry()

	db, err := database.Initialize(ctx, cfg, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create repositories")
	}

	market, err := datasource.NewFactory(cfg, appLog).Create()
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create market data provider")
	}

	selector, err := strategy.NewDefaultSelector(cfg.Strategy, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create strategy selector")
	}

	publisher := events.NewPublisher(cfg.Events, appLog)
	defer func() {
		if err := publisher.Close(); err != nil {
			appLog.WithError(err).Warn("Failed to close event publisher")
		}
	}()

	modelCache := pca.NewModelCache(
		"pca",
		time.Duration(cfg.Strategy.PCA.CacheTTLMinutes)*time.Minute,
		time.Duration(cfg.Strategy.PCA.RefreshAheadDays)*24*time.Hour,
	)
	ticks := bot.NewTickExecutor(repos, selector, modelCache, cfg.MarketData.Universe(), publisher, appLog)

	var stream *broker.TradeUpdateStream
	if cfg.Broker.StreamURL != "" {
		stream = broker.NewTradeUpdateStream(cfg.Broker.StreamURL, cfg.Broker.KeyID, cfg.Broker.SecretKey, appLog)
	}

	orchestrator, err := bot.NewOrchestrator(cfg.Trading, bot.Dependencies{
		Repos:    repos,
		Selector: selector,
		Ticks:    ticks,
		Broker:   broker.NewHTTPClient(cfg.Broker, appLog),
		Market:   market,
		Stream:   stream,
	}, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create orchestrator")
	}

	healthServer := newHealthServer(cfg, db, orchestrator, appLog)
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := orchestrator.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start orchestrator")
	}
	healthServer.SetReady(true)

	status := orchestrator.GetStatus()
	appLog.WithFields(logrus.Fields{
		"strategy":              status.ActiveStrategy,
		"investing_enabled":     status.InvestingEnabled,
		"circuit_breaker_state": status.CircuitBreakerState,
		"next_tick":             status.NextTick,
	}).Info("Bot is running")

	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")
	healthServer.SetReady(false)

	if err := orchestrator.Stop(); err != nil {
		appLog.WithError(err).Error("Error during orchestrator shutdown")
	}
	cancel()

	appLog.Info("Trading bot shut down successfully")
}

func loadConfigWithSecrets(ctx context.Context, path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Secrets.Enabled {
		if err := config.LoadSecretsFromAWS(ctx, cfg); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func newHealthServer(cfg *config.Config, db *database.DB, orchestrator *bot.Orchestrator, log *logrus.Logger) *health.Server {
	healthCfg := health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Port:        cfg.App.HealthPort,
		Logger:      log,
		Status: func() interface{} {
			return orchestrator.GetStatus()
		},
	}
	if cfg.Metrics.Enabled {
		healthCfg.Metrics = metrics.Handler()
		healthCfg.MetricsPath = cfg.Metrics.Path
	}

	server := health.NewServer(healthCfg)
	server.AddCheck("database", db.Ping)
	server.AddCheck("circuit_breaker", func(ctx context.Context) error {
		if orchestrator.CircuitBreaker().IsOpen() {
			return bot.ErrCircuitOpen
		}
		return nil
	})
	return server
}

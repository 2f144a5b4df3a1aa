// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"time"

	"github.com/yourusername/trading-bot/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Broker     BrokerConfig     `mapstructure:"broker" validate:"required"`
	MarketData MarketDataConfig `mapstructure:"market_data" validate:"required"`
	Strategy   StrategyConfig   `mapstructure:"strategy" validate:"required"`
	Trading    TradingConfig    `mapstructure:"trading" validate:"required"`
	Backtest   BacktestConfig   `mapstructure:"backtest" validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics" validate:"required"`
	Events     EventsConfig     `mapstructure:"events"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
	HealthPort  int    `mapstructure:"health_port" validate:"omitempty,min=1,max=65535"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// BrokerConfig represents brokerage REST and stream configuration
type BrokerConfig struct {
	APIURL            string  `mapstructure:"api_url" validate:"required,url"`
	StreamURL         string  `mapstructure:"stream_url" validate:"omitempty,url"`
	KeyID             string  `mapstructure:"key_id" validate:"required"`
	SecretKey         string  `mapstructure:"secret_key" validate:"required"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit         float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
	CircuitBreakerMax int     `mapstructure:"circuit_breaker_max" validate:"required,gt=0"`
}

// MarketDataConfig represents the market data provider configuration
type MarketDataConfig struct {
	Provider        string   `mapstructure:"provider" validate:"required,oneof=http csv"`
	DataURL         string   `mapstructure:"data_url" validate:"required_if=Provider http"`
	CSVPath         string   `mapstructure:"csv_path" validate:"required_if=Provider csv"`
	Symbols         []string `mapstructure:"symbols" validate:"required,min=1,symbols"`
	CacheTTLMinutes int      `mapstructure:"cache_ttl_minutes" validate:"required,gt=0"`
	RateLimit       float64  `mapstructure:"rate_limit" validate:"omitempty,gt=0"`
}

// StrategyConfig holds the selected strategy and the parameters of every variant
type StrategyConfig struct {
	Active  string        `mapstructure:"active" validate:"required,oneof=losers winners pairs pca"`
	Losers  LosersConfig  `mapstructure:"losers" validate:"required"`
	Winners WinnersConfig `mapstructure:"winners" validate:"required"`
	Pairs   PairsConfig   `mapstructure:"pairs" validate:"required"`
	PCA     PCAConfig     `mapstructure:"pca" validate:"required"`
}

// LosersConfig parameterizes the overreaction strategy
type LosersConfig struct {
	EvaluationFrequencyInDays int     `mapstructure:"evaluation_frequency_in_days" validate:"required,gt=0"`
	AnalysisLengthInDays      int     `mapstructure:"analysis_length_in_days" validate:"required,gt=1"`
	MinDaysDecreasing         int     `mapstructure:"min_days_decreasing" validate:"gte=0"`
	TopGrowingSymbolsBuyRatio float64 `mapstructure:"top_growing_symbols_buy_ratio" validate:"required,gt=0,lte=1"`
	MaxStocksBuyCount         int     `mapstructure:"max_stocks_buy_count" validate:"required,gt=0"`
}

// WinnersConfig parameterizes the trend following strategy
type WinnersConfig struct {
	EvaluationFrequencyInDays int     `mapstructure:"evaluation_frequency_in_days" validate:"required,gt=0"`
	AnalysisLengthInDays      int     `mapstructure:"analysis_length_in_days" validate:"required,gt=1"`
	MinDaysIncreasing         int     `mapstructure:"min_days_increasing" validate:"gte=0"`
	TopGrowingSymbolsBuyRatio float64 `mapstructure:"top_growing_symbols_buy_ratio" validate:"required,gt=0,lte=1"`
	MaxStocksBuyCount         int     `mapstructure:"max_stocks_buy_count" validate:"required,gt=0"`
	BuyWaitTimeInDays         int     `mapstructure:"buy_wait_time_in_days" validate:"gte=0"`
	SimultaneousEvaluations   int     `mapstructure:"simultaneous_evaluations" validate:"required,gt=0"`
}

// PairsConfig parameterizes the pair trading strategy
type PairsConfig struct {
	AnalysisLengthInDays       int     `mapstructure:"analysis_length_in_days" validate:"required,gt=2"`
	ReselectionFrequencyInDays int     `mapstructure:"reselection_frequency_in_days" validate:"required,gt=0"`
	SignalFrequencyInDays      int     `mapstructure:"signal_frequency_in_days" validate:"required,gt=0"`
	MinCorrelation             float64 `mapstructure:"min_correlation" validate:"gte=-1,lte=1"`
	MaxPairs                   int     `mapstructure:"max_pairs" validate:"required,gt=0"`
	EntryThreshold             float64 `mapstructure:"entry_threshold" validate:"required,gt=0"`
	ExitThreshold              float64 `mapstructure:"exit_threshold" validate:"gte=0"`
	CapitalFractionPerPair     float64 `mapstructure:"capital_fraction_per_pair" validate:"required,gt=0,lte=1"`
	VarianceFraction           float64 `mapstructure:"variance_fraction" validate:"required,gt=0,lte=1"`
	ModelValidityInDays        int     `mapstructure:"model_validity_in_days" validate:"required,gt=0"`
}

// PCAConfig parameterizes the PCA strategy and its model cache
type PCAConfig struct {
	AnalysisLengthInDays int     `mapstructure:"analysis_length_in_days" validate:"required,gt=2"`
	VarianceFraction     float64 `mapstructure:"variance_fraction" validate:"required,gt=0,lte=1"`
	ModelValidityInDays  int     `mapstructure:"model_validity_in_days" validate:"required,gt=0"`
	UndervaluedThreshold float64 `mapstructure:"undervalued_threshold"`
	OvervaluedThreshold  float64 `mapstructure:"overvalued_threshold"`
	BuyFraction          float64 `mapstructure:"buy_fraction" validate:"required,gt=0,lte=1"`
	LimitPriceDamping    float64 `mapstructure:"limit_price_damping" validate:"gte=0,lte=1"`
	RefreshAheadDays     int     `mapstructure:"refresh_ahead_days" validate:"gte=0"`
	CacheTTLMinutes      int     `mapstructure:"cache_ttl_minutes" validate:"required,gt=0"`
}

// TradingConfig represents the live trading loop configuration
type TradingConfig struct {
	Enabled                       bool   `mapstructure:"enabled"`
	Schedule                      string `mapstructure:"schedule" validate:"required,cronspec"`
	TickTimeoutSeconds            int    `mapstructure:"tick_timeout_seconds" validate:"required,gt=0"`
	MaxConsecutiveFailures        int    `mapstructure:"max_consecutive_failures" validate:"required,gt=0"`
	CircuitBreakerCooldownMinutes int    `mapstructure:"circuit_breaker_cooldown_minutes" validate:"required,gt=0"`
}

// BacktestConfig represents backtesting configuration
type BacktestConfig struct {
	StartDate         string  `mapstructure:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate           string  `mapstructure:"end_date" validate:"omitempty,datetime=2006-01-02"`
	InitialCash       float64 `mapstructure:"initial_cash" validate:"required,gt=0"`
	AllowShortSelling bool    `mapstructure:"allow_short_selling"`
	Currency          string  `mapstructure:"currency" validate:"required,len=3"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
}

// EventsConfig represents the domain event publisher configuration
type EventsConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	ActionsTopic   string   `mapstructure:"actions_topic" validate:"required_if=Enabled true"`
	BacktestsTopic string   `mapstructure:"backtests_topic" validate:"required_if=Enabled true"`
}

// SecretsConfig points at an AWS Secrets Manager secret overlaid on startup
type SecretsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region" validate:"required_if=Enabled true"`
	SecretName string `mapstructure:"secret_name" validate:"required_if=Enabled true"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Universe returns the configured tradable symbols
func (c *MarketDataConfig) Universe() []models.TradingSymbol {
	symbols := make([]models.TradingSymbol, len(c.Symbols))
	for i, s := range c.Symbols {
		symbols[i] = models.TradingSymbol(s)
	}
	return symbols
}

// CacheTTL returns the market data cache lifetime
func (c *MarketDataConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// TickTimeout returns the deadline of a single live tick
func (c *TradingConfig) TickTimeout() time.Duration {
	return time.Duration(c.TickTimeoutSeconds) * time.Second
}

// CircuitBreakerCooldown returns how long ticks stay halted after a trip
func (c *TradingConfig) CircuitBreakerCooldown() time.Duration {
	return time.Duration(c.CircuitBreakerCooldownMinutes) * time.Minute
}

// BrokerTimeout returns the HTTP timeout of broker calls
func (c *BrokerConfig) BrokerTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Package config provides configuration management for the trading bot.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "TRADING_BOT"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	v := newViper()

	// Read the expanded configuration
	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Unmarshal configuration into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If file doesn't exist, continue with defaults and environment variables

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set environment variable prefix
	v.SetEnvPrefix(envPrefix)

	// Enable automatic binding of environment variables
	v.AutomaticEnv()

	// Replace dots with underscores in environment variable names
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults mirrors the parameter values the strategies were tuned with
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "trading-bot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 5)

	v.SetDefault("broker.timeout_seconds", 30)
	v.SetDefault("broker.max_retries", 3)
	v.SetDefault("broker.rate_limit", 3.0)
	v.SetDefault("broker.circuit_breaker_max", 5)

	v.SetDefault("market_data.provider", "http")
	v.SetDefault("market_data.cache_ttl_minutes", 60)
	v.SetDefault("market_data.rate_limit", 3.0)

	v.SetDefault("strategy.active", "losers")
	v.SetDefault("strategy.losers.evaluation_frequency_in_days", 30)
	v.SetDefault("strategy.losers.analysis_length_in_days", 30)
	v.SetDefault("strategy.losers.min_days_decreasing", 0)
	v.SetDefault("strategy.losers.top_growing_symbols_buy_ratio", 0.1)
	v.SetDefault("strategy.losers.max_stocks_buy_count", 10)
	v.SetDefault("strategy.winners.evaluation_frequency_in_days", 30)
	v.SetDefault("strategy.winners.analysis_length_in_days", 360)
	v.SetDefault("strategy.winners.min_days_increasing", 0)
	v.SetDefault("strategy.winners.top_growing_symbols_buy_ratio", 0.1)
	v.SetDefault("strategy.winners.max_stocks_buy_count", 10)
	v.SetDefault("strategy.winners.buy_wait_time_in_days", 7)
	v.SetDefault("strategy.winners.simultaneous_evaluations", 3)
	v.SetDefault("strategy.pairs.analysis_length_in_days", 90)
	v.SetDefault("strategy.pairs.reselection_frequency_in_days", 30)
	v.SetDefault("strategy.pairs.signal_frequency_in_days", 1)
	v.SetDefault("strategy.pairs.min_correlation", 0.8)
	v.SetDefault("strategy.pairs.max_pairs", 5)
	v.SetDefault("strategy.pairs.entry_threshold", 2.0)
	v.SetDefault("strategy.pairs.exit_threshold", 0.5)
	v.SetDefault("strategy.pairs.capital_fraction_per_pair", 0.2)
	v.SetDefault("strategy.pairs.variance_fraction", 0.9)
	v.SetDefault("strategy.pairs.model_validity_in_days", 7)
	v.SetDefault("strategy.pca.analysis_length_in_days", 90)
	v.SetDefault("strategy.pca.variance_fraction", 0.9)
	v.SetDefault("strategy.pca.model_validity_in_days", 7)
	v.SetDefault("strategy.pca.undervalued_threshold", -1.0)
	v.SetDefault("strategy.pca.overvalued_threshold", 0.0)
	v.SetDefault("strategy.pca.buy_fraction", 0.3)
	v.SetDefault("strategy.pca.limit_price_damping", 0.5)
	v.SetDefault("strategy.pca.refresh_ahead_days", 3)
	v.SetDefault("strategy.pca.cache_ttl_minutes", 1440)

	v.SetDefault("trading.enabled", false)
	v.SetDefault("trading.schedule", "0 12 * * *")
	v.SetDefault("trading.tick_timeout_seconds", 300)
	v.SetDefault("trading.max_consecutive_failures", 3)
	v.SetDefault("trading.circuit_breaker_cooldown_minutes", 60)

	v.SetDefault("backtest.initial_cash", 100000.0)
	v.SetDefault("backtest.allow_short_selling", false)
	v.SetDefault("backtest.currency", "USD")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("events.actions_topic", "trading-actions")
	v.SetDefault("events.backtests_topic", "backtests")
}

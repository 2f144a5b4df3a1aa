package datasource

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
)

// SourceType represents the type of data source
type SourceType string

const (
	// HTTPSourceType fetches bars from the market data API
	HTTPSourceType SourceType = "http"
	// CSVSourceType replays bars from a local file
	CSVSourceType SourceType = "csv"
)

// Factory creates Provider implementations based on configuration
type Factory struct {
	logger *logrus.Logger
	config *config.Config
}

// NewFactory creates a new data source factory
func NewFactory(cfg *config.Config, logger *logrus.Logger) *Factory {
	return &Factory{
		logger: logger,
		config: cfg,
	}
}

// Create builds the configured provider wrapped in a cache
func (f *Factory) Create() (*CachedProvider, error) {
	md := f.config.MarketData

	var inner Provider
	switch SourceType(md.Provider) {
	case HTTPSourceType:
		inner = f.createHTTPSource()
	case CSVSourceType:
		memory, err := LoadCSVFile(md.CSVPath)
		if err != nil {
			return nil, err
		}
		inner = memory
	default:
		return nil, fmt.Errorf("unknown data source type: %s", md.Provider)
	}

	if f.logger != nil {
		f.logger.WithFields(logrus.Fields{
			"provider": md.Provider,
			"symbols":  len(md.Symbols),
		}).Info("Market data provider created")
	}

	return NewCachedProvider(inner, md.CacheTTL()), nil
}

func (f *Factory) createHTTPSource() Provider {
	md := f.config.MarketData
	broker := f.config.Broker

	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Timeout = broker.BrokerTimeout()
	httpCfg.MaxRetries = broker.MaxRetries
	httpCfg.CircuitBreakerMax = broker.CircuitBreakerMax
	httpCfg.RetryWaitMax = 5 * time.Second
	if md.RateLimit > 0 {
		httpCfg.RateLimit = md.RateLimit
	}

	client := NewRateLimitedHTTPClient(httpCfg, f.logger)
	return NewBarsProvider(client, md.DataURL, broker.KeyID, broker.SecretKey, md.Universe(), f.logger)
}

package strategy

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
)

// NewDefaultSelector registers every strategy variant with its configuration
// and activates cfg.Active.
func NewDefaultSelector(cfg config.StrategyConfig, log *logrus.Logger) (*Selector, error) {
	selector := NewSelector(
		NewLosers(cfg.Losers, log),
		NewWinners(cfg.Winners, log),
		NewPairs(cfg.Pairs, log),
		NewPcaStrategy(cfg.PCA, log),
	)
	if cfg.Active != "" {
		if _, err := selector.SetActive(cfg.Active); err != nil {
			return nil, err
		}
	}
	return selector, nil
}

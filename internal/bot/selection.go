package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

// SelectStrategy makes name the live strategy. The outgoing strategy's live
// state is passed through its deselection hook before the switch and the
// choice is persisted. It returns the previously active name.
func SelectStrategy(
	ctx context.Context,
	selector *strategy.Selector,
	repos *repository.Repositories,
	name, changedBy string,
	log *logrus.Logger,
) (string, error) {
	if _, err := selector.Lookup(name); err != nil {
		return "", err
	}

	previous := selector.ActiveName()
	err := repos.WithTransaction(ctx, func(ctx context.Context) error {
		if previous != name && previous != "" {
			if err := deselect(ctx, selector, repos.StrategyState, previous, name); err != nil {
				return err
			}
		}
		if err := repos.StrategySelection.Set(ctx, name, changedBy); err != nil {
			return fmt.Errorf("failed to persist strategy selection: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if _, err := selector.SetActive(name); err != nil {
		return "", err
	}

	metrics.SetActiveStrategy(previous, name)
	logger.NewAuditLogger(log).LogStrategySelectionChange(previous, name, changedBy)
	strategyLog := logger.NewStrategyLogger(log)
	if previous != "" && previous != name {
		strategyLog.LogStrategyDeactivation(previous, name, "selection changed by "+changedBy)
	}
	strategyLog.LogStrategyActivation(name, previous, "selection changed by "+changedBy)
	return previous, nil
}

func deselect(ctx context.Context, selector *strategy.Selector, states repository.StrategyStateRepository, outgoing, next string) error {
	evaluator, err := selector.Lookup(outgoing)
	if err != nil {
		return err
	}
	hook, ok := evaluator.(strategy.Deselector)
	if !ok {
		return nil
	}

	if _, err := states.Load(ctx, outgoing, nil); errors.Is(err, models.ErrNotFound) {
		return nil
	}
	state, err := LoadState(ctx, states, evaluator, nil)
	if err != nil {
		return err
	}
	return SaveState(ctx, states, outgoing, nil, hook.OnDeselect(state, next))
}

// RestoreSelection activates the persisted live strategy. Without a stored
// selection the configured default stays active.
func RestoreSelection(ctx context.Context, selector *strategy.Selector, selections repository.StrategySelectionRepository, log *logrus.Logger) error {
	name, err := selections.Get(ctx)
	if errors.Is(err, models.ErrNotFound) {
		metrics.SetActiveStrategy("", selector.ActiveName())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load strategy selection: %w", err)
	}

	previous, err := selector.SetActive(name)
	if err != nil {
		var unknown *strategy.UnknownStrategyError
		if errors.As(err, &unknown) {
			log.WithField("strategy", name).Warn("Persisted strategy is not registered, keeping default")
			metrics.SetActiveStrategy("", selector.ActiveName())
			return nil
		}
		return err
	}

	metrics.SetActiveStrategy(previous, name)
	log.WithFields(logrus.Fields{
		"strategy": name,
		"default":  previous,
	}).Info("Restored strategy selection")
	return nil
}

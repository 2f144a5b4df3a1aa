package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
)

var minCashShare = decimal.RequireFromString("0.01")

// PcaStrategy buys symbols trading well below the price explained by the
// principal components of the universe and sells held ones trading above it.
type PcaStrategy struct {
	cfg    config.PCAConfig
	logger *logger.StrategyLogger
}

// NewPcaStrategy creates the PCA strategy
func NewPcaStrategy(cfg config.PCAConfig, log *logrus.Logger) *PcaStrategy {
	return &PcaStrategy{cfg: cfg, logger: logger.NewStrategyLogger(log)}
}

// Name returns strategy name
func (s *PcaStrategy) Name() string {
	return PcaName
}

// Description returns the human readable strategy name
func (s *PcaStrategy) Description() string {
	return "PCA strategy"
}

// NewState returns an empty state
func (s *PcaStrategy) NewState() State {
	return &models.PcaState{}
}

// Evaluate scores the universe once per day
func (s *PcaStrategy) Evaluate(ctx context.Context, in Input, st State) (State, []*models.TradingAction, error) {
	state, ok := st.(*models.PcaState)
	if !ok {
		return nil, nil, fmt.Errorf("pca: unexpected state type %T", st)
	}
	if state.NextEvaluationDay != nil && in.Day().Before(*state.NextEvaluationDay) {
		metrics.RecordStrategyDecision(s.Name(), "skip")
		s.logger.LogEvaluationSkipped(s.Name(), in.AsOf, *state.NextEvaluationDay)
		return st, nil, nil
	}
	metrics.RecordStrategyDecision(s.Name(), "evaluate")

	window, err := loadWindow(ctx, in, s.cfg.AnalysisLengthInDays)
	if err != nil {
		return nil, nil, err
	}
	symbols := make([]models.TradingSymbol, 0, len(window))
	for symbol := range window {
		symbols = append(symbols, symbol)
	}
	models.SortSymbols(symbols)

	build := modelBuilder(in.Market, s.cfg.AnalysisLengthInDays, s.cfg.VarianceFraction, validityDays(s.cfg.ModelValidityInDays))
	scope := modelScope(s.cfg.AnalysisLengthInDays, s.cfg.VarianceFraction, s.cfg.ModelValidityInDays)
	model, err := fetchModel(ctx, in, scope, symbols, build)
	if err != nil {
		return nil, nil, err
	}
	s.logger.LogModelFitted(s.Name(), len(model.Symbols), model.Components(), model.ExpiresAt)

	scores := pca.ScoreSymbols(model, pca.LatestCloses(window, in.Day()))
	next := &models.PcaState{NextEvaluationDay: models.DayPtr(models.AddDays(in.Day(), 1))}

	var actions []*models.TradingAction
	cash := availableCash(in)
	if cash.GreaterThan(in.Assets.Equity.Mul(minCashShare)) {
		fraction := decimal.NewFromFloat(s.cfg.BuyFraction)
		for _, score := range scores {
			if score.NormalizedDifference >= s.cfg.UndervaluedThreshold {
				continue
			}
			bar, ok := models.LastOnOrBefore(window[score.Symbol], in.Day())
			if !ok {
				continue
			}
			amount := cash.Mul(fraction)
			if action := s.buy(in, score.Symbol, amount, bar); action != nil {
				cash = cash.Sub(amount)
				actions = append(actions, action)
			}
		}
	}

	for _, score := range scores {
		if score.NormalizedDifference <= s.cfg.OvervaluedThreshold {
			continue
		}
		p, held := in.Assets.Position(score.Symbol)
		if !held || !p.AvailableQuantity.IsPositive() {
			continue
		}
		bar, ok := models.LastOnOrBefore(window[score.Symbol], in.Day())
		if !ok {
			continue
		}
		if action := s.sell(in, score.Symbol, p.AvailableQuantity, bar); action != nil {
			actions = append(actions, action)
		}
	}

	return next, actions, nil
}

func (s *PcaStrategy) buy(in Input, symbol models.TradingSymbol, amount decimal.Decimal, bar models.PricePoint) *models.TradingAction {
	if !in.UsePredictor {
		if qty := quantityFor(amount, bar.Close); qty.IsPositive() {
			return marketBuy(in, symbol, qty)
		}
		return nil
	}
	limit := LimitBuyPrice(bar.Close, bar.Low, s.cfg.LimitPriceDamping)
	qty := quantityFor(amount, limit).Floor()
	if !qty.IsPositive() {
		return nil
	}
	return models.NewLimitAction(in.IDs.NewID(), in.AsOf, symbol, qty, limit, models.OrderTypeLimitBuy)
}

func (s *PcaStrategy) sell(in Input, symbol models.TradingSymbol, quantity decimal.Decimal, bar models.PricePoint) *models.TradingAction {
	if !in.UsePredictor {
		return marketSell(in, symbol, quantity)
	}
	qty := quantity.Floor()
	if !qty.IsPositive() {
		return nil
	}
	limit := LimitSellPrice(bar.Close, bar.High, s.cfg.LimitPriceDamping)
	return models.NewLimitAction(in.IDs.NewID(), in.AsOf, symbol, qty, limit, models.OrderTypeLimitSell)
}

// LimitBuyPrice moves the buy limit from the last price toward the low by
// 1-damping. Limit orders are whole-share only.
func LimitBuyPrice(last, low decimal.Decimal, damping float64) decimal.Decimal {
	if !last.GreaterThan(low) {
		return low.Round(2)
	}
	return blend(last, low, damping)
}

// LimitSellPrice moves the sell limit from the last price toward the high by
// 1-damping.
func LimitSellPrice(last, high decimal.Decimal, damping float64) decimal.Decimal {
	if !last.LessThan(high) {
		return high.Round(2)
	}
	return blend(last, high, damping)
}

func blend(last, bound decimal.Decimal, damping float64) decimal.Decimal {
	d := decimal.NewFromFloat(damping)
	return last.Mul(d).Add(bound.Mul(decimal.NewFromInt(1).Sub(d))).Round(2)
}

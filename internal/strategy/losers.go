package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
)

// Losers buys the worst performers of the analysis window, expecting the
// market to have overreacted, and holds them until the next evaluation.
type Losers struct {
	cfg    config.LosersConfig
	logger *logger.StrategyLogger
}

// NewLosers creates the overreaction strategy
func NewLosers(cfg config.LosersConfig, log *logrus.Logger) *Losers {
	return &Losers{cfg: cfg, logger: logger.NewStrategyLogger(log)}
}

// Name returns strategy name
func (s *Losers) Name() string {
	return LosersName
}

// Description returns the human readable strategy name
func (s *Losers) Description() string {
	return "Overreaction strategy"
}

// NewState returns an empty state
func (s *Losers) NewState() State {
	return &models.LosersState{}
}

// Evaluate buys pending losers or, on an evaluation day, selects new ones
func (s *Losers) Evaluate(ctx context.Context, in Input, st State) (State, []*models.TradingAction, error) {
	state, ok := st.(*models.LosersState)
	if !ok {
		return nil, nil, fmt.Errorf("losers: unexpected state type %T", st)
	}

	if len(state.SymbolsToBuy) > 0 {
		if state.NextEvaluationDay == nil || !in.Day().After(*state.NextEvaluationDay) {
			metrics.RecordStrategyDecision(s.Name(), "buy_pending")
			return s.buyPending(ctx, in, state)
		}
		s.logger.WithFields(logrus.Fields{
			"strategy_name": s.Name(),
			"symbols":       symbolStrings(state.SymbolsToBuy),
		}).Warn("Pending buys outlived their evaluation, dropping")
	}

	if state.NextEvaluationDay != nil && in.Day().Before(*state.NextEvaluationDay) {
		metrics.RecordStrategyDecision(s.Name(), "skip")
		s.logger.LogEvaluationSkipped(s.Name(), in.AsOf, *state.NextEvaluationDay)
		return st, nil, nil
	}

	metrics.RecordStrategyDecision(s.Name(), "evaluate")
	losers, err := s.determineLosers(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	s.logger.LogSymbolsSelected(s.Name(), "losers", symbolStrings(losers))

	var unowned []models.TradingSymbol
	for _, symbol := range losers {
		if !in.Assets.Holds(symbol) {
			unowned = append(unowned, symbol)
		}
	}

	base := in.Day()
	if state.NextEvaluationDay != nil {
		base = *state.NextEvaluationDay
	}
	next := &models.LosersState{
		NextEvaluationDay: models.DayPtr(models.AddDays(base, s.cfg.EvaluationFrequencyInDays)),
		SymbolsToBuy:      unowned,
	}
	return next, sellAllHeld(in, models.SymbolSet(losers)), nil
}

func (s *Losers) determineLosers(ctx context.Context, in Input) ([]models.TradingSymbol, error) {
	window, err := loadWindow(ctx, in, s.cfg.AnalysisLengthInDays)
	if err != nil {
		return nil, err
	}
	ranked := rankByReturn(window)
	size := selectionSize(len(ranked), s.cfg.TopGrowingSymbolsBuyRatio, s.cfg.MaxStocksBuyCount)

	var losers []models.TradingSymbol
	for _, r := range ranked {
		if len(losers) == size {
			break
		}
		if r.down >= s.cfg.MinDaysDecreasing {
			losers = append(losers, r.symbol)
		}
	}
	return losers, nil
}

// OnDeselect drops the evaluation schedule and pending buys unless losers
// stays active.
func (s *Losers) OnDeselect(st State, next string) State {
	if _, ok := st.(*models.LosersState); !ok || next == LosersName {
		return st
	}
	return &models.LosersState{}
}

// buyPending buys the pending symbols that are neither held nor linked to a
// recorded action. Buys the executor deferred leave no record and are retried.
func (s *Losers) buyPending(ctx context.Context, in Input, state *models.LosersState) (State, []*models.TradingAction, error) {
	recorded, err := linkedActions(ctx, in, state.ActionIDs)
	if err != nil {
		return nil, nil, err
	}
	done := make(map[models.TradingSymbol]struct{}, len(recorded))
	for _, a := range recorded {
		done[a.Symbol] = struct{}{}
	}

	var toBuy []models.TradingSymbol
	for _, symbol := range state.SymbolsToBuy {
		if _, ok := done[symbol]; ok || in.Assets.Holds(symbol) {
			continue
		}
		toBuy = append(toBuy, symbol)
	}

	next := &models.LosersState{NextEvaluationDay: state.NextEvaluationDay}
	if len(toBuy) == 0 {
		return next, nil, nil
	}

	var actions []*models.TradingAction
	perSymbol := availableCash(in).Mul(cashBuffer).Div(decimal.NewFromInt(int64(len(toBuy))))
	for _, symbol := range toBuy {
		price, err := lastPrice(ctx, in, symbol)
		if errors.Is(err, datasource.ErrNoPriceData) {
			s.logger.WithField("symbol", symbol).Warn("No price for pending symbol, skipping")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if qty := quantityFor(perSymbol, price); qty.IsPositive() {
			action := marketBuy(in, symbol, qty)
			actions = append(actions, action)
			next.SymbolsToBuy = append(next.SymbolsToBuy, symbol)
			next.ActionIDs = append(next.ActionIDs, action.ID)
		}
	}
	return next, actions, nil
}

func symbolStrings(symbols []models.TradingSymbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.String()
	}
	return out
}

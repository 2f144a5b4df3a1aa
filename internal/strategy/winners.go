package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
)

// boughtGraceDays is how long past its buy day an evaluation keeps retrying
const boughtGraceDays = 7

// Winners follows the trend: it buys the best performers of the analysis
// window and holds several overlapping evaluations at once.
type Winners struct {
	cfg    config.WinnersConfig
	logger *logger.StrategyLogger
}

// NewWinners creates the trend following strategy
func NewWinners(cfg config.WinnersConfig, log *logrus.Logger) *Winners {
	return &Winners{cfg: cfg, logger: logger.NewStrategyLogger(log)}
}

// Name returns strategy name
func (s *Winners) Name() string {
	return WinnersName
}

// Description returns the human readable strategy name
func (s *Winners) Description() string {
	return "Trend following strategy"
}

// NewState returns an empty state
func (s *Winners) NewState() State {
	return &models.WinnersState{}
}

type pendingEvaluation struct {
	index   int
	symbols []models.TradingSymbol
}

// Evaluate buys for due evaluations, or creates a new evaluation and closes
// the ones that have run their course.
func (s *Winners) Evaluate(ctx context.Context, in Input, st State) (State, []*models.TradingAction, error) {
	state, ok := st.(*models.WinnersState)
	if !ok {
		return nil, nil, fmt.Errorf("winners: unexpected state type %T", st)
	}

	next := copyWinnersState(state)
	pending, changed, err := s.pendingEvaluations(ctx, in, next)
	if err != nil {
		return nil, nil, err
	}
	if len(pending) > 0 {
		metrics.RecordStrategyDecision(s.Name(), "buy_pending")
		actions, err := s.buyPending(ctx, in, next, pending)
		if err != nil {
			return nil, nil, err
		}
		return next, actions, nil
	}

	if state.NextEvaluationDay != nil && in.Day().Before(*state.NextEvaluationDay) {
		metrics.RecordStrategyDecision(s.Name(), "skip")
		s.logger.LogEvaluationSkipped(s.Name(), in.AsOf, *state.NextEvaluationDay)
		if changed {
			return next, nil, nil
		}
		return st, nil, nil
	}

	metrics.RecordStrategyDecision(s.Name(), "evaluate")
	winners, err := s.determineWinners(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	s.logger.LogSymbolsSelected(s.Name(), "winners", symbolStrings(winners))

	next.Evaluations = append(next.Evaluations, models.WinnersEvaluation{
		ID:           in.IDs.NewID(),
		CreatedAt:    in.Day(),
		SymbolsToBuy: winners,
	})

	firstSelection := state.NextEvaluationDay == nil
	base := in.Day()
	if !firstSelection {
		base = *state.NextEvaluationDay
	}
	next.NextEvaluationDay = models.DayPtr(models.AddDays(base, s.cfg.EvaluationFrequencyInDays))

	if firstSelection {
		return next, sellAllHeld(in, nil), nil
	}

	actions, err := s.closeEndingEvaluations(ctx, in, next)
	if err != nil {
		return nil, nil, err
	}
	return next, actions, nil
}

// OnDeselect forgets the evaluation schedule unless winners stays active
func (s *Winners) OnDeselect(st State, next string) State {
	state, ok := st.(*models.WinnersState)
	if !ok || next == WinnersName {
		return st
	}
	cleared := copyWinnersState(state)
	cleared.NextEvaluationDay = nil
	return cleared
}

// pendingEvaluations resolves the symbols still to buy for every due
// evaluation and marks finished ones as bought.
func (s *Winners) pendingEvaluations(ctx context.Context, in Input, state *models.WinnersState) ([]pendingEvaluation, bool, error) {
	var pending []pendingEvaluation
	changed := false
	for i := range state.Evaluations {
		e := &state.Evaluations[i]
		buyDay := models.AddDays(e.CreatedAt, s.cfg.BuyWaitTimeInDays)
		if e.Bought || buyDay.After(in.Day()) {
			continue
		}

		toBuy, open, err := s.remainingSymbols(ctx, in, e)
		if err != nil {
			return nil, false, err
		}
		if (len(toBuy) == 0 && len(open) == 0) || models.AddDays(buyDay, boughtGraceDays).Before(in.Day()) {
			e.Bought = true
			changed = true
			continue
		}
		if len(toBuy) > 0 {
			pending = append(pending, pendingEvaluation{index: i, symbols: toBuy})
		}
	}
	return pending, changed, nil
}

func (s *Winners) remainingSymbols(ctx context.Context, in Input, e *models.WinnersEvaluation) (toBuy, open []models.TradingSymbol, err error) {
	actions, err := linkedActions(ctx, in, e.ActionIDs)
	if err != nil {
		return nil, nil, err
	}

	bought := make(map[models.TradingSymbol]struct{})
	for _, a := range actions {
		if a.IsFilled() {
			bought[a.Symbol] = struct{}{}
		}
	}
	openSet := make(map[models.TradingSymbol]struct{})
	for _, a := range actions {
		if _, ok := bought[a.Symbol]; ok || !a.IsOpen() {
			continue
		}
		if _, seen := openSet[a.Symbol]; !seen {
			openSet[a.Symbol] = struct{}{}
			open = append(open, a.Symbol)
		}
	}

	for _, symbol := range e.SymbolsToBuy {
		_, isBought := bought[symbol]
		_, isOpen := openSet[symbol]
		if !isBought && !isOpen {
			toBuy = append(toBuy, symbol)
		}
	}
	return toBuy, open, nil
}

func (s *Winners) buyPending(ctx context.Context, in Input, state *models.WinnersState, pending []pendingEvaluation) ([]*models.TradingAction, error) {
	parts := decimal.Zero
	for _, p := range pending {
		parts = parts.Add(pendingShare(p, state))
	}
	free := s.cfg.SimultaneousEvaluations - len(state.Evaluations)
	if free > 0 {
		parts = parts.Add(decimal.NewFromInt(int64(free)))
	}

	available := availableCash(in)
	var actions []*models.TradingAction
	for _, p := range pending {
		usable := available.Div(parts).Mul(pendingShare(p, state))
		perSymbol := usable.Div(decimal.NewFromInt(int64(len(p.symbols)))).Mul(cashBuffer)

		e := &state.Evaluations[p.index]
		for _, symbol := range p.symbols {
			price, err := lastPrice(ctx, in, symbol)
			if errors.Is(err, datasource.ErrNoPriceData) {
				s.logger.WithField("symbol", symbol).Warn("No price for winner, skipping")
				continue
			}
			if err != nil {
				return nil, err
			}
			qty := quantityFor(perSymbol, price)
			if !qty.IsPositive() {
				continue
			}
			action := marketBuy(in, symbol, qty)
			e.ActionIDs = append(e.ActionIDs, action.ID)
			actions = append(actions, action)
		}
	}
	return actions, nil
}

func pendingShare(p pendingEvaluation, state *models.WinnersState) decimal.Decimal {
	total := len(state.Evaluations[p.index].SymbolsToBuy)
	return decimal.NewFromInt(int64(len(p.symbols))).Div(decimal.NewFromInt(int64(total)))
}

// closeEndingEvaluations sells what ending evaluations bought and drops them
func (s *Winners) closeEndingEvaluations(ctx context.Context, in Input, state *models.WinnersState) ([]*models.TradingAction, error) {
	lifetime := s.cfg.EvaluationFrequencyInDays*s.cfg.SimultaneousEvaluations - s.cfg.EvaluationFrequencyInDays/2

	available := make(map[models.TradingSymbol]decimal.Decimal)
	for _, symbol := range in.Assets.HeldSymbols() {
		p, _ := in.Assets.Position(symbol)
		available[symbol] = p.AvailableQuantity
	}

	var actions []*models.TradingAction
	kept := state.Evaluations[:0]
	for _, e := range state.Evaluations {
		if models.AddDays(e.CreatedAt, lifetime).After(in.Day()) {
			kept = append(kept, e)
			continue
		}

		linked, err := linkedActions(ctx, in, e.ActionIDs)
		if err != nil {
			return nil, err
		}
		for _, a := range linked {
			if !a.IsFilled() || !a.OrderType.IsBuy() {
				continue
			}
			qty := decimal.Min(a.Quantity, available[a.Symbol])
			if !qty.IsPositive() {
				continue
			}
			available[a.Symbol] = available[a.Symbol].Sub(qty)
			actions = append(actions, marketSell(in, a.Symbol, qty))
		}
		s.logger.WithFields(logrus.Fields{
			"strategy_name": s.Name(),
			"evaluation_id": e.ID,
			"created_at":    e.CreatedAt.Format("2006-01-02"),
		}).Info("Winners evaluation ended")
	}
	state.Evaluations = kept
	return actions, nil
}

func (s *Winners) determineWinners(ctx context.Context, in Input) ([]models.TradingSymbol, error) {
	window, err := loadWindow(ctx, in, s.cfg.AnalysisLengthInDays)
	if err != nil {
		return nil, err
	}
	ranked := rankByReturn(window)
	size := selectionSize(len(ranked), s.cfg.TopGrowingSymbolsBuyRatio, s.cfg.MaxStocksBuyCount)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ret != ranked[j].ret {
			return ranked[i].ret > ranked[j].ret
		}
		return ranked[i].symbol < ranked[j].symbol
	})

	var winners []models.TradingSymbol
	for _, r := range ranked {
		if len(winners) == size {
			break
		}
		if r.up >= s.cfg.MinDaysIncreasing {
			winners = append(winners, r.symbol)
		}
	}
	return winners, nil
}

// linkedActions returns the actions for ids in the order of ids
func linkedActions(ctx context.Context, in Input, ids []uuid.UUID) ([]*models.TradingAction, error) {
	if len(ids) == 0 || in.Actions == nil {
		return nil, nil
	}
	found, err := in.Actions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked actions: %w", err)
	}
	byID := make(map[uuid.UUID]*models.TradingAction, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	ordered := make([]*models.TradingAction, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

func copyWinnersState(state *models.WinnersState) *models.WinnersState {
	c := &models.WinnersState{}
	if state.NextEvaluationDay != nil {
		c.NextEvaluationDay = models.DayPtr(*state.NextEvaluationDay)
	}
	c.Evaluations = make([]models.WinnersEvaluation, len(state.Evaluations))
	for i, e := range state.Evaluations {
		e.SymbolsToBuy = append([]models.TradingSymbol(nil), e.SymbolsToBuy...)
		e.ActionIDs = append([]uuid.UUID(nil), e.ActionIDs...)
		c.Evaluations[i] = e
	}
	return c
}

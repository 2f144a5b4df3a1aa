package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
)

// Pairs trades correlated symbols against each other when their PCA
// normalized differences diverge.
type Pairs struct {
	cfg    config.PairsConfig
	logger *logger.StrategyLogger
}

// NewPairs creates the pair trading strategy
func NewPairs(cfg config.PairsConfig, log *logrus.Logger) *Pairs {
	return &Pairs{cfg: cfg, logger: logger.NewStrategyLogger(log)}
}

// Name returns strategy name
func (s *Pairs) Name() string {
	return PairsName
}

// Description returns the human readable strategy name
func (s *Pairs) Description() string {
	return "Pair trading strategy"
}

// NewState returns an empty state
func (s *Pairs) NewState() State {
	return &models.PairsState{}
}

// Evaluate reselects the pair group when due and checks entry and exit signals
func (s *Pairs) Evaluate(ctx context.Context, in Input, st State) (State, []*models.TradingAction, error) {
	state, ok := st.(*models.PairsState)
	if !ok {
		return nil, nil, fmt.Errorf("pairs: unexpected state type %T", st)
	}

	reselect := state.NextReselectionDay == nil || !in.Day().Before(*state.NextReselectionDay)
	signal := state.NextEvaluationDay == nil || !in.Day().Before(*state.NextEvaluationDay)
	if !reselect && !signal {
		metrics.RecordStrategyDecision(s.Name(), "skip")
		s.logger.LogEvaluationSkipped(s.Name(), in.AsOf, *state.NextEvaluationDay)
		return st, nil, nil
	}

	next := copyPairsState(state)
	actions, dropped, err := s.dropUnfilled(ctx, in, next)
	if err != nil {
		return nil, nil, err
	}

	if reselect {
		metrics.RecordStrategyDecision(s.Name(), "reselect")
		group, err := s.selectGroup(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		next.Group = group

		var kept []models.OpenPair
		for _, open := range next.Open {
			if group.Contains(open.Pair) {
				kept = append(kept, open)
				continue
			}
			actions = append(actions, closePair(in, open)...)
		}
		next.Open = kept
		next.NextReselectionDay = advance(state.NextReselectionDay, in, s.cfg.ReselectionFrequencyInDays)
	}

	if signal {
		metrics.RecordStrategyDecision(s.Name(), "evaluate")
		signalActions, err := s.checkSignals(ctx, in, next, dropped)
		if err != nil {
			return nil, nil, err
		}
		actions = append(actions, signalActions...)
		next.NextEvaluationDay = advance(state.NextEvaluationDay, in, s.cfg.SignalFrequencyInDays)
	}

	return next, actions, nil
}

// selectGroup picks non-overlapping pairs by descending return correlation
func (s *Pairs) selectGroup(ctx context.Context, in Input) (*models.PairGroup, error) {
	window, err := loadWindow(ctx, in, s.cfg.AnalysisLengthInDays)
	if err != nil {
		return nil, err
	}
	matrix := pca.BuildMatrix(window)
	returns := dailyReturns(matrix)

	var candidates []models.Pair
	for i := 0; i < len(matrix.Symbols); i++ {
		for j := i + 1; j < len(matrix.Symbols); j++ {
			corr := pearson(returns[i], returns[j])
			if math.IsNaN(corr) || corr < s.cfg.MinCorrelation {
				continue
			}
			candidates = append(candidates, models.Pair{
				First:       matrix.Symbols[i],
				Second:      matrix.Symbols[j],
				Correlation: corr,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Correlation != candidates[j].Correlation {
			return candidates[i].Correlation > candidates[j].Correlation
		}
		return candidates[i].Key() < candidates[j].Key()
	})

	used := make(map[models.TradingSymbol]struct{})
	group := &models.PairGroup{ID: in.IDs.NewID(), CreatedAt: in.Day()}
	for _, c := range candidates {
		if len(group.Pairs) == s.cfg.MaxPairs {
			break
		}
		_, firstUsed := used[c.First]
		_, secondUsed := used[c.Second]
		if firstUsed || secondUsed {
			continue
		}
		used[c.First] = struct{}{}
		used[c.Second] = struct{}{}
		group.Pairs = append(group.Pairs, c)
	}

	s.logger.WithFields(logrus.Fields{
		"strategy_name": s.Name(),
		"group_id":      group.ID,
		"pairs":         len(group.Pairs),
		"candidates":    len(candidates),
	}).Info("Pair group selected")
	return group, nil
}

// dropUnfilled removes open pairs whose entry legs did not both fill and
// unwinds the leg that did. Pairs with a leg still working are kept.
func (s *Pairs) dropUnfilled(ctx context.Context, in Input, state *models.PairsState) ([]*models.TradingAction, map[string]struct{}, error) {
	if in.Actions == nil {
		return nil, nil, nil
	}
	var actions []*models.TradingAction
	dropped := make(map[string]struct{})
	kept := state.Open[:0:0]
	for _, open := range state.Open {
		if len(open.ActionIDs) == 0 {
			kept = append(kept, open)
			continue
		}
		legs, err := linkedActions(ctx, in, open.ActionIDs)
		if err != nil {
			return nil, nil, err
		}
		longFilled, shortFilled, working := false, false, false
		for _, leg := range legs {
			switch {
			case leg.IsOpen():
				working = true
			case leg.IsFilled() && leg.Symbol == open.Long:
				longFilled = true
			case leg.IsFilled() && leg.Symbol == open.Short:
				shortFilled = true
			}
		}
		if working || (longFilled && shortFilled) {
			kept = append(kept, open)
			continue
		}

		unwind := open
		if !longFilled {
			unwind.LongQuantity = decimal.Zero
		}
		if !shortFilled {
			unwind.ShortQuantity = decimal.Zero
		}
		actions = append(actions, closePair(in, unwind)...)
		dropped[open.Pair.Key()] = struct{}{}
		s.logger.WithFields(logrus.Fields{
			"strategy_name": s.Name(),
			"pair":          open.Pair.Key(),
			"long_filled":   longFilled,
			"short_filled":  shortFilled,
		}).Warn("Pair legs did not fill, dropping")
	}
	state.Open = kept
	return actions, dropped, nil
}

// checkSignals opens diverged pairs and closes converged ones. Pairs in skip
// are not entered this tick.
func (s *Pairs) checkSignals(ctx context.Context, in Input, state *models.PairsState, skip map[string]struct{}) ([]*models.TradingAction, error) {
	symbols := state.Group.Symbols()
	if len(symbols) == 0 {
		return nil, nil
	}

	build := modelBuilder(in.Market, s.cfg.AnalysisLengthInDays, s.cfg.VarianceFraction, validityDays(s.cfg.ModelValidityInDays))
	scope := modelScope(s.cfg.AnalysisLengthInDays, s.cfg.VarianceFraction, s.cfg.ModelValidityInDays)
	model, err := fetchModel(ctx, in, scope, symbols, build)
	if err != nil {
		return nil, err
	}

	recent, err := in.Market.GetAllPrices(ctx, models.AddDays(in.Day(), -lastPriceLookbackDays), in.Day())
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prices: %w", err)
	}
	latest := pca.LatestCloses(recent, in.Day())
	nd := make(map[models.TradingSymbol]float64)
	for _, score := range pca.ScoreSymbols(model, latest) {
		nd[score.Symbol] = score.NormalizedDifference
	}

	fraction := decimal.NewFromFloat(s.cfg.CapitalFractionPerPair).Div(decimal.NewFromInt(2))
	legBudget := in.Assets.Equity.Mul(fraction)

	var actions []*models.TradingAction
	for _, pair := range state.Group.Pairs {
		first, okFirst := nd[pair.First]
		second, okSecond := nd[pair.Second]
		if !okFirst || !okSecond {
			continue
		}
		spread := first - second
		openIdx := findOpen(state.Open, pair)

		switch {
		case openIdx < 0 && math.Abs(spread) > s.cfg.EntryThreshold:
			if _, ok := skip[pair.Key()]; ok {
				continue
			}
			long, short := pair.First, pair.Second
			if first > second {
				long, short = short, long
			}
			open, entry := openPair(in, pair, long, short, legBudget, recent)
			if len(entry) == 0 {
				continue
			}
			state.Open = append(state.Open, open)
			actions = append(actions, entry...)
			s.logger.WithFields(logrus.Fields{
				"strategy_name": s.Name(),
				"pair":          pair.Key(),
				"spread":        spread,
			}).Info("Pair opened")
		case openIdx >= 0 && math.Abs(spread) < s.cfg.ExitThreshold:
			actions = append(actions, closePair(in, state.Open[openIdx])...)
			state.Open = append(state.Open[:openIdx], state.Open[openIdx+1:]...)
			s.logger.WithFields(logrus.Fields{
				"strategy_name": s.Name(),
				"pair":          pair.Key(),
				"spread":        spread,
			}).Info("Pair closed")
		}
	}
	return actions, nil
}

func openPair(in Input, pair models.Pair, long, short models.TradingSymbol, budget decimal.Decimal,
	recent map[models.TradingSymbol][]models.PricePoint) (models.OpenPair, []*models.TradingAction) {
	longPrice, okLong := models.LastOnOrBefore(recent[long], in.Day())
	shortPrice, okShort := models.LastOnOrBefore(recent[short], in.Day())
	if !okLong || !okShort {
		return models.OpenPair{}, nil
	}
	longQty := quantityFor(budget, longPrice.Close)
	shortQty := quantityFor(budget, shortPrice.Close)
	if !longQty.IsPositive() || !shortQty.IsPositive() {
		return models.OpenPair{}, nil
	}

	buy := marketBuy(in, long, longQty)
	sell := marketSell(in, short, shortQty)
	return models.OpenPair{
		Pair:          pair,
		Long:          long,
		Short:         short,
		LongQuantity:  longQty,
		ShortQuantity: shortQty,
		OpenedAt:      in.Day(),
		ActionIDs:     []uuid.UUID{buy.ID, sell.ID},
	}, []*models.TradingAction{buy, sell}
}

// closePair unwinds whatever part of both legs is still held
func closePair(in Input, open models.OpenPair) []*models.TradingAction {
	var actions []*models.TradingAction
	if p, ok := in.Assets.Position(open.Long); ok {
		if qty := decimal.Min(open.LongQuantity, p.AvailableQuantity); qty.IsPositive() {
			actions = append(actions, marketSell(in, open.Long, qty))
		}
	}
	if p, ok := in.Assets.Position(open.Short); ok && p.Quantity.IsNegative() {
		if qty := decimal.Min(open.ShortQuantity, p.Quantity.Neg()); qty.IsPositive() {
			actions = append(actions, marketBuy(in, open.Short, qty))
		}
	}
	return actions
}

func findOpen(open []models.OpenPair, pair models.Pair) int {
	for i, o := range open {
		if o.Pair.Key() == pair.Key() {
			return i
		}
	}
	return -1
}

func advance(previous *time.Time, in Input, days int) *time.Time {
	base := in.Day()
	if previous != nil {
		base = *previous
	}
	return models.DayPtr(models.AddDays(base, days))
}

// dailyReturns converts each matrix column to simple day-over-day returns
func dailyReturns(m pca.PriceMatrix) [][]float64 {
	returns := make([][]float64, len(m.Symbols))
	for c := range m.Symbols {
		for r := 1; r < len(m.Prices); r++ {
			prev := m.Prices[r-1][c]
			if prev == 0 {
				returns[c] = append(returns[c], 0)
				continue
			}
			returns[c] = append(returns[c], m.Prices[r][c]/prev-1)
		}
	}
	return returns
}

// pearson returns the correlation coefficient, NaN when undefined
func pearson(a, b []float64) float64 {
	n := len(a)
	if n < 2 || n != len(b) {
		return math.NaN()
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

func copyPairsState(state *models.PairsState) *models.PairsState {
	c := &models.PairsState{
		NextEvaluationDay:  state.NextEvaluationDay,
		NextReselectionDay: state.NextReselectionDay,
	}
	if state.Group != nil {
		g := *state.Group
		g.Pairs = append([]models.Pair(nil), state.Group.Pairs...)
		c.Group = &g
	}
	for _, o := range state.Open {
		o.ActionIDs = append(o.ActionIDs[:0:0], o.ActionIDs...)
		c.Open = append(c.Open, o)
	}
	return c
}

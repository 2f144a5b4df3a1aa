package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WinnersEvaluation is one selection of top performers awaiting purchase or sale
type WinnersEvaluation struct {
	ID           uuid.UUID       `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Bought       bool            `json:"bought"`
	SymbolsToBuy []TradingSymbol `json:"symbols_to_buy"`
	ActionIDs    []uuid.UUID     `json:"action_ids"`
}

// WinnersState is the persisted state of the trend following strategy
type WinnersState struct {
	NextEvaluationDay *time.Time          `json:"next_evaluation_day,omitempty"`
	Evaluations       []WinnersEvaluation `json:"evaluations"`
}

// LosersState is the persisted state of the overreaction strategy
type LosersState struct {
	NextEvaluationDay *time.Time      `json:"next_evaluation_day,omitempty"`
	SymbolsToBuy      []TradingSymbol `json:"symbols_to_buy"`
	// ActionIDs are the buys issued for SymbolsToBuy
	ActionIDs []uuid.UUID `json:"action_ids,omitempty"`
}

// Pair is two symbols traded against each other
type Pair struct {
	First       TradingSymbol `json:"first"`
	Second      TradingSymbol `json:"second"`
	Correlation float64       `json:"correlation"`
}

// Key identifies the pair independent of its correlation
func (p Pair) Key() string {
	return string(p.First) + "/" + string(p.Second)
}

// PairGroup is a set of pairs selected together
type PairGroup struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Pairs     []Pair    `json:"pairs"`
}

// Symbols returns every symbol of the group in lexical order
func (g *PairGroup) Symbols() []TradingSymbol {
	if g == nil {
		return nil
	}
	set := make(map[TradingSymbol]struct{}, len(g.Pairs)*2)
	for _, p := range g.Pairs {
		set[p.First] = struct{}{}
		set[p.Second] = struct{}{}
	}
	symbols := make([]TradingSymbol, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	return SortSymbols(symbols)
}

// Contains reports whether the group holds a pair with the same key
func (g *PairGroup) Contains(pair Pair) bool {
	if g == nil {
		return false
	}
	for _, p := range g.Pairs {
		if p.Key() == pair.Key() {
			return true
		}
	}
	return false
}

// OpenPair is a pair position opened on a divergence signal
type OpenPair struct {
	Pair          Pair            `json:"pair"`
	Long          TradingSymbol   `json:"long"`
	Short         TradingSymbol   `json:"short"`
	LongQuantity  decimal.Decimal `json:"long_quantity"`
	ShortQuantity decimal.Decimal `json:"short_quantity"`
	OpenedAt      time.Time       `json:"opened_at"`
	ActionIDs     []uuid.UUID     `json:"action_ids"`
}

// PairsState is the persisted state of the pair trading strategy
type PairsState struct {
	NextEvaluationDay  *time.Time `json:"next_evaluation_day,omitempty"`
	NextReselectionDay *time.Time `json:"next_reselection_day,omitempty"`
	Group              *PairGroup `json:"group,omitempty"`
	Open               []OpenPair `json:"open"`
}

// PcaState is the persisted state of the PCA strategy
type PcaState struct {
	NextEvaluationDay *time.Time `json:"next_evaluation_day,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cash holds the account's cash balances
type Cash struct {
	Currency    string          `json:"currency"`
	Available   decimal.Decimal `json:"available"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}

// Position is a held quantity of a single symbol
type Position struct {
	Symbol            TradingSymbol   `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	MarketValue       decimal.Decimal `json:"market_value"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
}

// AssetsSnapshot is the account state recorded at the end of a tick
type AssetsSnapshot struct {
	ID         uuid.UUID                  `db:"id" json:"id"`
	CreatedAt  time.Time                  `db:"created_at" json:"created_at"`
	BacktestID *uuid.UUID                 `db:"backtest_id" json:"backtest_id,omitempty"`
	Equity     decimal.Decimal            `db:"equity" json:"equity"`
	Cash       Cash                       `db:"cash" json:"cash"`
	Positions  map[TradingSymbol]Position `db:"positions" json:"positions"`
}

// Position returns the position held in symbol, if any
func (a *AssetsSnapshot) Position(symbol TradingSymbol) (Position, bool) {
	if a == nil || a.Positions == nil {
		return Position{}, false
	}
	p, ok := a.Positions[symbol]
	return p, ok
}

// Holds reports whether a non-zero position exists for symbol
func (a *AssetsSnapshot) Holds(symbol TradingSymbol) bool {
	p, ok := a.Position(symbol)
	return ok && !p.Quantity.IsZero()
}

// HeldSymbols returns the symbols of all non-zero positions in lexical order
func (a *AssetsSnapshot) HeldSymbols() []TradingSymbol {
	if a == nil {
		return nil
	}
	symbols := make([]TradingSymbol, 0, len(a.Positions))
	for s, p := range a.Positions {
		if !p.Quantity.IsZero() {
			symbols = append(symbols, s)
		}
	}
	return SortSymbols(symbols)
}

// RelativeReturn is (last - first) / first, or 0 when first is zero
func RelativeReturn(first, last decimal.Decimal) float64 {
	if first.IsZero() {
		return 0
	}
	return last.Sub(first).Div(first).InexactFloat64()
}

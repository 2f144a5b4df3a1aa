package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType is the order kind: market or limit, buy or sell
type OrderType string

const (
	OrderTypeMarketBuy  OrderType = "market_buy"
	OrderTypeMarketSell OrderType = "market_sell"
	OrderTypeLimitBuy   OrderType = "limit_buy"
	OrderTypeLimitSell  OrderType = "limit_sell"
)

// IsBuy reports whether the order acquires the asset
func (t OrderType) IsBuy() bool {
	return t == OrderTypeMarketBuy || t == OrderTypeLimitBuy
}

// IsMarket reports whether the order executes at market price
func (t OrderType) IsMarket() bool {
	return t == OrderTypeMarketBuy || t == OrderTypeMarketSell
}

// TimeInForce is the order duration
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceOPG TimeInForce = "opg"
	TimeInForceCLS TimeInForce = "cls"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// ActionStatus is the lifecycle status of a trading action
type ActionStatus string

const (
	ActionStatusNew       ActionStatus = "new"
	ActionStatusSubmitted ActionStatus = "submitted"
	ActionStatusFilled    ActionStatus = "filled"
	ActionStatusExpired   ActionStatus = "expired"
	ActionStatusCancelled ActionStatus = "cancelled"
	ActionStatusFailed    ActionStatus = "failed"
)

// ActionError is the recorded outcome of a rejected action
type ActionError struct {
	Code    string `db:"error_code" json:"code"`
	Message string `db:"error_message" json:"message"`
}

// TradingAction is a trading intent and, once executed, its outcome
type TradingAction struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	Symbol           TradingSymbol    `db:"symbol" json:"symbol"`
	Quantity         decimal.Decimal  `db:"quantity" json:"quantity"`
	Price            *decimal.Decimal `db:"price" json:"price,omitempty"`
	InForce          TimeInForce      `db:"in_force" json:"in_force"`
	OrderType        OrderType        `db:"order_type" json:"order_type"`
	Status           ActionStatus     `db:"status" json:"status"`
	ExecutedAt       *time.Time       `db:"executed_at" json:"executed_at,omitempty"`
	BrokerOrderID    *string          `db:"broker_order_id" json:"broker_order_id,omitempty"`
	AverageFillPrice *decimal.Decimal `db:"average_fill_price" json:"average_fill_price,omitempty"`
	Error            *ActionError     `json:"error,omitempty"`
	TaskID           *uuid.UUID       `db:"trading_task_id" json:"trading_task_id,omitempty"`
}

// NewMarketAction creates a day market order intent
func NewMarketAction(id uuid.UUID, createdAt time.Time, symbol TradingSymbol, quantity decimal.Decimal, orderType OrderType) *TradingAction {
	return &TradingAction{
		ID:        id,
		CreatedAt: createdAt,
		Symbol:    symbol,
		Quantity:  quantity,
		InForce:   TimeInForceDay,
		OrderType: orderType,
		Status:    ActionStatusNew,
	}
}

// NewLimitAction creates a day limit order intent
func NewLimitAction(id uuid.UUID, createdAt time.Time, symbol TradingSymbol, quantity, price decimal.Decimal, orderType OrderType) *TradingAction {
	action := NewMarketAction(id, createdAt, symbol, quantity, orderType)
	action.Price = &price
	return action
}

// Clone returns a deep copy of the action
func (a *TradingAction) Clone() *TradingAction {
	if a == nil {
		return nil
	}
	c := *a
	if a.Price != nil {
		p := *a.Price
		c.Price = &p
	}
	if a.ExecutedAt != nil {
		t := *a.ExecutedAt
		c.ExecutedAt = &t
	}
	if a.BrokerOrderID != nil {
		id := *a.BrokerOrderID
		c.BrokerOrderID = &id
	}
	if a.AverageFillPrice != nil {
		p := *a.AverageFillPrice
		c.AverageFillPrice = &p
	}
	if a.Error != nil {
		e := *a.Error
		c.Error = &e
	}
	if a.TaskID != nil {
		id := *a.TaskID
		c.TaskID = &id
	}
	return &c
}

// IsOpen reports whether the action may still be filled
func (a *TradingAction) IsOpen() bool {
	return a.Status == ActionStatusNew || a.Status == ActionStatusSubmitted
}

// IsFilled reports whether the action was executed by the broker
func (a *TradingAction) IsFilled() bool {
	return a.Status == ActionStatusFilled
}

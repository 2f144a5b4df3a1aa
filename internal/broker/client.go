// Package broker translates trading actions into brokerage calls and
// classifies their failures.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/trading-bot/internal/models"
)

// Client is the brokerage surface the trading core depends on
type Client interface {
	// SubmitOrder places an order. Failures are returned as raw errors and
	// are mapped with Classify.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// GetAssets returns the current cash and positions
	GetAssets(ctx context.Context) (*models.AssetsSnapshot, error)

	// GetTradableAssets lists assets the account may trade
	GetTradableAssets(ctx context.Context) ([]TradableAsset, error)

	// IsOpenWithin reports whether the exchange is open at now or opens
	// within window.
	IsOpenWithin(ctx context.Context, now time.Time, window time.Duration) (bool, error)
}

// OrderRequest is the order derived from a trading action
type OrderRequest struct {
	ClientOrderID string               `json:"client_order_id" validate:"required"`
	Symbol        models.TradingSymbol `json:"symbol" validate:"required"`
	Quantity      decimal.Decimal      `json:"qty" validate:"gt=0"`
	LimitPrice    *decimal.Decimal     `json:"limit_price,omitempty" validate:"omitempty,gt=0"`
	OrderType     models.OrderType     `json:"order_type" validate:"required,oneof=market_buy market_sell limit_buy limit_sell"`
	TimeInForce   models.TimeInForce   `json:"time_in_force" validate:"required,oneof=day gtc opg cls ioc fok"`
}

// NewOrderRequest builds the order request of an action
func NewOrderRequest(action *models.TradingAction) OrderRequest {
	req := OrderRequest{
		ClientOrderID: action.ID.String(),
		Symbol:        action.Symbol,
		Quantity:      action.Quantity,
		OrderType:     action.OrderType,
		TimeInForce:   action.InForce,
	}
	if action.Price != nil {
		p := *action.Price
		req.LimitPrice = &p
	}
	return req
}

// IsFractional reports whether the quantity has a fractional part
func (r OrderRequest) IsFractional() bool {
	return !r.Quantity.Equal(r.Quantity.Truncate(0))
}

// OrderResult is the broker's answer to a submitted order
type OrderResult struct {
	BrokerOrderID string
	Status        models.ActionStatus
	SubmittedAt   time.Time
	FilledAt      *time.Time
	FillPrice     *decimal.Decimal
	FilledQty     decimal.Decimal
}

// TradableAsset describes an asset offered by the broker
type TradableAsset struct {
	Symbol       models.TradingSymbol `json:"symbol"`
	Tradable     bool                 `json:"tradable"`
	Fractionable bool                 `json:"fractionable"`
	Shortable    bool                 `json:"shortable"`
}

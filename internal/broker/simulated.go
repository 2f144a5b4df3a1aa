package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
)

// priceLookbackDays bounds how far back a mark price is searched
const priceLookbackDays = 14

type simPosition struct {
	quantity          decimal.Decimal
	averageEntryPrice decimal.Decimal
}

// SimulatedBroker fills orders against historical daily bars. Each
// backtest owns one instance; the current day is advanced with SetDay.
type SimulatedBroker struct {
	mu         sync.Mutex
	market     datasource.Provider
	currency   string
	allowShort bool
	day        time.Time
	cash       decimal.Decimal
	positions  map[models.TradingSymbol]*simPosition
	orderSeq   int
}

// NewSimulatedBroker creates a simulated account funded with initialCash
func NewSimulatedBroker(market datasource.Provider, initialCash decimal.Decimal, currency string, allowShort bool) *SimulatedBroker {
	return &SimulatedBroker{
		market:     market,
		currency:   currency,
		allowShort: allowShort,
		cash:       initialCash,
		positions:  make(map[models.TradingSymbol]*simPosition),
	}
}

// SetDay moves the simulated clock to day
func (b *SimulatedBroker) SetDay(day time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.day = models.Day(day)
}

// Day returns the simulated day
func (b *SimulatedBroker) Day() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.day
}

// SubmitOrder validates and immediately settles an order against the
// current day's bar
func (b *SimulatedBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := ValidateOrder(req); err != nil {
		return nil, err
	}
	if req.IsFractional() && (!req.OrderType.IsMarket() || req.TimeInForce != models.TimeInForceDay) {
		return nil, NewInvalidFractionalOrderError("fractional orders must be market orders with day time in force", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	history, err := b.market.GetPrices(ctx, req.Symbol, models.AddDays(b.day, -priceLookbackDays), b.day)
	if err != nil {
		return nil, NewCallFailedError(err)
	}
	if len(history) == 0 {
		return nil, NewAssetNotFoundError(fmt.Sprintf("asset %q not found", req.Symbol), nil)
	}

	b.orderSeq++
	result := &OrderResult{
		BrokerOrderID: fmt.Sprintf("sim-%06d", b.orderSeq),
		SubmittedAt:   b.day,
	}

	bar, ok := models.PointOn(history, b.day)
	if !ok {
		result.Status = models.ActionStatusExpired
		return result, nil
	}

	reference := bar.Close
	if req.LimitPrice != nil {
		reference = *req.LimitPrice
	}
	position := b.positions[req.Symbol]

	if req.OrderType.IsBuy() {
		if req.Quantity.Mul(reference).GreaterThan(b.cash) {
			return nil, NewInsufficientFundsError("insufficient buying power", nil)
		}
	} else {
		held := decimal.Zero
		if position != nil {
			held = position.quantity
		}
		if req.Quantity.GreaterThan(held) && !b.allowShort {
			return nil, NewInsufficientAssetsError("account is not allowed to short", nil)
		}
	}

	price, filled := fillPrice(req, bar)
	if !filled {
		result.Status = models.ActionStatusExpired
		return result, nil
	}

	b.apply(req, price)

	filledAt := b.day
	result.Status = models.ActionStatusFilled
	result.FilledAt = &filledAt
	result.FillPrice = &price
	result.FilledQty = req.Quantity
	return result, nil
}

// fillPrice returns the execution price of an order against a daily bar
func fillPrice(req OrderRequest, bar models.PricePoint) (decimal.Decimal, bool) {
	if req.OrderType.IsMarket() {
		return bar.Close, true
	}
	limit := *req.LimitPrice
	if req.OrderType.IsBuy() {
		if bar.Low.GreaterThan(limit) {
			return decimal.Zero, false
		}
		return decimal.Min(limit, bar.Close), true
	}
	if bar.High.LessThan(limit) {
		return decimal.Zero, false
	}
	return decimal.Max(limit, bar.Close), true
}

func (b *SimulatedBroker) apply(req OrderRequest, price decimal.Decimal) {
	position := b.positions[req.Symbol]
	if position == nil {
		position = &simPosition{quantity: decimal.Zero, averageEntryPrice: decimal.Zero}
		b.positions[req.Symbol] = position
	}

	amount := req.Quantity.Mul(price)
	delta := req.Quantity
	if req.OrderType.IsBuy() {
		b.cash = b.cash.Sub(amount)
	} else {
		b.cash = b.cash.Add(amount)
		delta = delta.Neg()
	}

	next := position.quantity.Add(delta)
	switch {
	case next.IsZero():
		delete(b.positions, req.Symbol)
		return
	case position.quantity.IsZero() || position.quantity.Sign() != next.Sign():
		// Opened or flipped side
		position.averageEntryPrice = price
	case position.quantity.Sign() == delta.Sign():
		// Increased in the same direction
		cost := position.quantity.Mul(position.averageEntryPrice).Add(delta.Mul(price))
		position.averageEntryPrice = cost.Div(next)
	}
	position.quantity = next
}

// GetAssets marks positions to the latest close on or before the current day
func (b *SimulatedBroker) GetAssets(ctx context.Context) (*models.AssetsSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := &models.AssetsSnapshot{
		Cash: models.Cash{
			Currency:    b.currency,
			Available:   b.cash,
			BuyingPower: decimal.Max(b.cash, decimal.Zero),
		},
		Positions: make(map[models.TradingSymbol]models.Position, len(b.positions)),
	}

	equity := b.cash
	for symbol, position := range b.positions {
		mark := position.averageEntryPrice
		point, err := datasource.LastPrice(ctx, b.market, symbol, b.day, priceLookbackDays)
		if err == nil {
			mark = point.Close
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		value := position.quantity.Mul(mark)
		equity = equity.Add(value)
		available := position.quantity
		if available.IsNegative() {
			available = decimal.Zero
		}
		snapshot.Positions[symbol] = models.Position{
			Symbol:            symbol,
			Quantity:          position.quantity,
			AvailableQuantity: available,
			MarketValue:       value,
			AverageEntryPrice: position.averageEntryPrice,
		}
	}
	snapshot.Equity = equity
	return snapshot, nil
}

// GetTradableAssets lists the symbols with market data around the current day
func (b *SimulatedBroker) GetTradableAssets(ctx context.Context) ([]TradableAsset, error) {
	day := b.Day()
	all, err := b.market.GetAllPrices(ctx, models.AddDays(day, -priceLookbackDays), day)
	if err != nil {
		return nil, NewCallFailedError(err)
	}
	symbols := make([]models.TradingSymbol, 0, len(all))
	for symbol := range all {
		symbols = append(symbols, symbol)
	}
	models.SortSymbols(symbols)

	assets := make([]TradableAsset, len(symbols))
	for i, symbol := range symbols {
		assets[i] = TradableAsset{Symbol: symbol, Tradable: true, Fractionable: true, Shortable: b.allowShort}
	}
	return assets, nil
}

// IsOpenWithin treats a day as open when any market data exists for it
func (b *SimulatedBroker) IsOpenWithin(ctx context.Context, now time.Time, window time.Duration) (bool, error) {
	all, err := b.market.GetAllPrices(ctx, models.Day(now), models.Day(now))
	if err != nil {
		return false, NewCallFailedError(err)
	}
	return len(all) > 0, nil
}

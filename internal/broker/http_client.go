package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
)

// HTTPClient implements Client against an Alpaca-compatible trading REST API
type HTTPClient struct {
	httpClient *datasource.RateLimitedHTTPClient
	baseURL    string
	keyID      string
	secretKey  string
	logger     *logrus.Entry
}

type orderPayload struct {
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	ClientOrderID string           `json:"client_order_id"`
}

type orderResponse struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Status         string           `json:"status"`
	SubmittedAt    *time.Time       `json:"submitted_at"`
	FilledAt       *time.Time       `json:"filled_at"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
}

type accountResponse struct {
	Currency    string          `json:"currency"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Equity      decimal.Decimal `json:"equity"`
}

type positionResponse struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	QtyAvailable  decimal.Decimal `json:"qty_available"`
	MarketValue   decimal.Decimal `json:"market_value"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

type clockResponse struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewHTTPClient creates a broker REST client. Rate limited responses are
// not retried; they surface as transient errors.
func NewHTTPClient(cfg config.BrokerConfig, logger *logrus.Logger) *HTTPClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	httpCfg := datasource.DefaultHTTPClientConfig()
	httpCfg.Timeout = cfg.BrokerTimeout()
	httpCfg.MaxRetries = cfg.MaxRetries
	httpCfg.RateLimit = cfg.RateLimit
	httpCfg.CircuitBreakerMax = cfg.CircuitBreakerMax
	httpCfg.RetryRateLimited = false

	return &HTTPClient{
		httpClient: datasource.NewRateLimitedHTTPClient(httpCfg, logger),
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		keyID:      cfg.KeyID,
		secretKey:  cfg.SecretKey,
		logger:     logger.WithField("component", "broker_client"),
	}
}

// SubmitOrder posts an order to the broker
func (c *HTTPClient) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	payload := orderPayload{
		Symbol:        req.Symbol.String(),
		Qty:           req.Quantity,
		Side:          "sell",
		Type:          "limit",
		TimeInForce:   string(req.TimeInForce),
		LimitPrice:    req.LimitPrice,
		ClientOrderID: req.ClientOrderID,
	}
	if req.OrderType.IsBuy() {
		payload.Side = "buy"
	}
	if req.OrderType.IsMarket() {
		payload.Type = "market"
		payload.LimitPrice = nil
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", payload, &resp); err != nil {
		return nil, err
	}

	result := &OrderResult{
		BrokerOrderID: resp.ID,
		Status:        mapOrderStatus(resp.Status),
		FilledAt:      resp.FilledAt,
		FillPrice:     resp.FilledAvgPrice,
		FilledQty:     resp.FilledQty,
	}
	if resp.SubmittedAt != nil {
		result.SubmittedAt = *resp.SubmittedAt
	}

	c.logger.WithFields(logrus.Fields{
		"broker_order_id": resp.ID,
		"symbol":          req.Symbol,
		"status":          resp.Status,
	}).Debug("Order submitted")

	return result, nil
}

// GetAssets loads the account and its positions
func (c *HTTPClient) GetAssets(ctx context.Context) (*models.AssetsSnapshot, error) {
	var account accountResponse
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &account); err != nil {
		return nil, err
	}
	var positions []positionResponse
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &positions); err != nil {
		return nil, err
	}

	snapshot := &models.AssetsSnapshot{
		Equity: account.Equity,
		Cash: models.Cash{
			Currency:    account.Currency,
			Available:   account.Cash,
			BuyingPower: account.BuyingPower,
		},
		Positions: make(map[models.TradingSymbol]models.Position, len(positions)),
	}
	for _, p := range positions {
		symbol := models.TradingSymbol(p.Symbol)
		snapshot.Positions[symbol] = models.Position{
			Symbol:            symbol,
			Quantity:          p.Qty,
			AvailableQuantity: p.QtyAvailable,
			MarketValue:       p.MarketValue,
			AverageEntryPrice: p.AvgEntryPrice,
		}
	}
	return snapshot, nil
}

// GetTradableAssets lists active assets
func (c *HTTPClient) GetTradableAssets(ctx context.Context) ([]TradableAsset, error) {
	var assets []TradableAsset
	if err := c.do(ctx, http.MethodGet, "/v2/assets?status=active&asset_class=us_equity", nil, &assets); err != nil {
		return nil, err
	}
	tradable := assets[:0]
	for _, a := range assets {
		if a.Tradable {
			tradable = append(tradable, a)
		}
	}
	return tradable, nil
}

// IsOpenWithin asks the broker clock whether the market opens within window
func (c *HTTPClient) IsOpenWithin(ctx context.Context, now time.Time, window time.Duration) (bool, error) {
	var clock clockResponse
	if err := c.do(ctx, http.MethodGet, "/v2/clock", nil, &clock); err != nil {
		return false, err
	}
	if clock.IsOpen {
		return true, nil
	}
	return !clock.NextOpen.After(now.Add(window)), nil
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	return c.httpClient.Close()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		var parsed apiErrorBody
		if json.Unmarshal(raw, &parsed) == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func mapOrderStatus(status string) models.ActionStatus {
	switch status {
	case "filled":
		return models.ActionStatusFilled
	case "canceled", "cancelled":
		return models.ActionStatusCancelled
	case "expired", "done_for_day":
		return models.ActionStatusExpired
	case "rejected", "suspended", "stopped":
		return models.ActionStatusFailed
	default:
		return models.ActionStatusSubmitted
	}
}

package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/models"
)

const barsPageLimit = 10000

// BarsProvider fetches daily bars from an Alpaca-compatible market data API
type BarsProvider struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	keyID      string
	secretKey  string
	universe   []models.TradingSymbol
	logger     *logrus.Entry
}

type barResponse struct {
	Time   time.Time       `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

type barsPage struct {
	Bars          []barResponse `json:"bars"`
	Symbol        string        `json:"symbol"`
	NextPageToken *string       `json:"next_page_token"`
}

// NewBarsProvider creates a new market data provider over HTTP
func NewBarsProvider(httpClient *RateLimitedHTTPClient, baseURL, keyID, secretKey string, universe []models.TradingSymbol, logger *logrus.Logger) *BarsProvider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &BarsProvider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		secretKey:  secretKey,
		universe:   append([]models.TradingSymbol(nil), universe...),
		logger:     logger.WithField("component", "bars_provider"),
	}
}

// Name returns the name of the data source
func (p *BarsProvider) Name() string {
	return "bars_http"
}

// GetPrices fetches daily bars for one symbol, following pagination
func (p *BarsProvider) GetPrices(ctx context.Context, symbol models.TradingSymbol, start, end time.Time) ([]models.PricePoint, error) {
	start, end = models.Day(start), models.Day(end)
	if end.Before(start) {
		return nil, nil
	}

	var points []models.PricePoint
	pageToken := ""
	for {
		page, err := p.fetchPage(ctx, symbol, start, end, pageToken)
		if err != nil {
			return nil, err
		}
		for _, bar := range page.Bars {
			day := models.Day(bar.Time)
			if day.Before(start) || day.After(end) {
				continue
			}
			point := models.PricePoint{
				Date:   day,
				Open:   bar.Open,
				Close:  bar.Close,
				High:   bar.High,
				Low:    bar.Low,
				Volume: bar.Volume,
			}
			if violations := ValidatePricePoint(point); len(violations) > 0 {
				p.logger.WithError(validationError(p.Name(), symbol, point, violations)).Warn("Skipping invalid bar")
				continue
			}
			points = append(points, point)
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		pageToken = *page.NextPageToken
	}

	p.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
		"points": len(points),
	}).Debug("Fetched daily bars")

	return points, nil
}

// GetAllPrices fetches every symbol of the configured universe. Symbols
// without bars in range are left out of the result.
func (p *BarsProvider) GetAllPrices(ctx context.Context, start, end time.Time) (map[models.TradingSymbol][]models.PricePoint, error) {
	result := make(map[models.TradingSymbol][]models.PricePoint, len(p.universe))
	for _, symbol := range p.universe {
		points, err := p.GetPrices(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			result[symbol] = points
		}
	}
	return result, nil
}

func (p *BarsProvider) fetchPage(ctx context.Context, symbol models.TradingSymbol, start, end time.Time, pageToken string) (*barsPage, error) {
	query := url.Values{}
	query.Set("timeframe", "1Day")
	query.Set("start", start.Format("2006-01-02"))
	query.Set("end", end.Format("2006-01-02"))
	query.Set("adjustment", "raw")
	query.Set("limit", fmt.Sprintf("%d", barsPageLimit))
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", p.baseURL, url.PathEscape(symbol.String()), query.Encode())

	header := http.Header{}
	header.Set("APCA-API-KEY-ID", p.keyID)
	header.Set("APCA-API-SECRET-KEY", p.secretKey)
	header.Set("Accept", "application/json")

	resp, err := p.httpClient.Get(ctx, endpoint, header)
	if err != nil {
		return nil, NewDataSourceError(p.Name(), ErrCodeNetworkError, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewDataSourceError(p.Name(), ErrCodeRateLimitExceeded, "rate limit exceeded", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewDataSourceError(p.Name(), ErrCodeAuthenticationFailed, "authentication failed", nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewDataSourceError(p.Name(), ErrCodeNotFound, "unknown symbol "+symbol.String(), nil)
	case resp.StatusCode >= 500:
		return nil, NewDataSourceError(p.Name(), ErrCodeServerError, fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, NewDataSourceError(p.Name(), ErrCodeInvalidData, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var page barsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, NewDataSourceError(p.Name(), ErrCodeInvalidData, "failed to decode bars", err)
	}
	return &page, nil
}

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/models"
)

// TradeUpdateStream follows order updates of live actions over the
// broker's websocket stream
type TradeUpdateStream struct {
	url             string
	keyID           string
	secretKey       string
	mu              sync.RWMutex
	conn            *websocket.Conn
	isConnected     bool
	handlers        []TradeUpdateHandler
	reconnectConfig ReconnectConfig
	lastMessageTime time.Time
	logger          *logrus.Entry
}

// ReconnectConfig controls reconnection behavior
type ReconnectConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// TradeUpdate is a single order event
type TradeUpdate struct {
	Event         string
	Timestamp     time.Time
	BrokerOrderID string
	ClientOrderID string
	Status        models.ActionStatus
	FilledAt      *time.Time
	FillPrice     *decimal.Decimal
}

// IsFinal reports whether the order will receive no further updates
func (u TradeUpdate) IsFinal() bool {
	return u.Status != models.ActionStatusSubmitted && u.Status != models.ActionStatusNew
}

type tradeUpdateData struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Order     struct {
		ID             string           `json:"id"`
		ClientOrderID  string           `json:"client_order_id"`
		Status         string           `json:"status"`
		FilledAt       *time.Time       `json:"filled_at"`
		FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
	} `json:"order"`
}

// TradeUpdateHandler is called for every received trade update
type TradeUpdateHandler func(ctx context.Context, update TradeUpdate) error

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type authorizationData struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// NewTradeUpdateStream creates a new stream client
func NewTradeUpdateStream(url, keyID, secretKey string, logger *logrus.Logger) *TradeUpdateStream {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &TradeUpdateStream{
		url:             url,
		keyID:           keyID,
		secretKey:       secretKey,
		reconnectConfig: DefaultReconnectConfig(),
		logger:          logger.WithField("component", "trade_update_stream"),
	}
}

// SetReconnectConfig overrides the reconnection behavior
func (s *TradeUpdateStream) SetReconnectConfig(cfg ReconnectConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectConfig = cfg
}

// AddHandler registers a trade update handler
func (s *TradeUpdateStream) AddHandler(handler TradeUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Run connects, subscribes to trade updates and dispatches them until ctx
// is done, reconnecting with backoff when the connection drops.
func (s *TradeUpdateStream) Run(ctx context.Context) error {
	s.mu.RLock()
	cfg := s.reconnectConfig
	s.mu.RUnlock()

	backoff := cfg.InitialBackoff
	attempts := 0
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// A session that got messages resets the backoff
			attempts = 0
			backoff = cfg.InitialBackoff
		} else {
			attempts++
			s.logger.WithError(err).WithField("attempt", attempts).Warn("Trade update stream disconnected")
			if attempts > cfg.MaxRetries {
				return fmt.Errorf("trade update stream gave up after %d attempts: %w", attempts, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

// session runs one connection. It returns nil when the connection was
// established and later closed.
func (s *TradeUpdateStream) session(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	if err := s.authenticate(); err != nil {
		return err
	}
	if err := s.sendMessage(map[string]interface{}{
		"action": "listen",
		"data":   map[string]interface{}{"streams": []string{"trade_updates"}},
	}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.logger.Info("Listening for trade updates")
	s.readMessages(ctx)
	return nil
}

// Connect establishes the websocket connection
func (s *TradeUpdateStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isConnected {
		return fmt.Errorf("already connected")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.lastMessageTime = time.Now()
	return nil
}

func (s *TradeUpdateStream) authenticate() error {
	if err := s.sendMessage(map[string]string{
		"action": "auth",
		"key":    s.keyID,
		"secret": s.secretKey,
	}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid auth response: %w", err)
	}
	var auth authorizationData
	if err := json.Unmarshal(msg.Data, &auth); err != nil {
		return fmt.Errorf("invalid auth response: %w", err)
	}
	if msg.Stream != "authorization" || auth.Status != "authorized" {
		return errors.New("trade update stream authorization rejected")
	}
	return nil
}

func (s *TradeUpdateStream) readMessages(ctx context.Context) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Debug("Error reading message")
			}
			return
		}

		s.mu.Lock()
		s.lastMessageTime = time.Now()
		s.mu.Unlock()

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.WithError(err).Warn("Discarding malformed stream message")
			continue
		}
		if msg.Stream != "trade_updates" {
			continue
		}

		update, err := parseTradeUpdate(msg.Data)
		if err != nil {
			s.logger.WithError(err).Warn("Discarding malformed trade update")
			continue
		}

		s.mu.RLock()
		handlers := s.handlers
		s.mu.RUnlock()

		for _, handler := range handlers {
			if err := handler(ctx, update); err != nil {
				s.logger.WithError(err).WithField("broker_order_id", update.BrokerOrderID).Warn("Trade update handler error")
			}
		}
	}
}

func parseTradeUpdate(data json.RawMessage) (TradeUpdate, error) {
	var wire tradeUpdateData
	if err := json.Unmarshal(data, &wire); err != nil {
		return TradeUpdate{}, err
	}
	if wire.Order.ID == "" {
		return TradeUpdate{}, errors.New("trade update without order id")
	}
	return TradeUpdate{
		Event:         wire.Event,
		Timestamp:     wire.Timestamp,
		BrokerOrderID: wire.Order.ID,
		ClientOrderID: wire.Order.ClientOrderID,
		Status:        mapOrderStatus(wire.Order.Status),
		FilledAt:      wire.Order.FilledAt,
		FillPrice:     wire.Order.FilledAvgPrice,
	}, nil
}

// sendMessage sends a JSON message to the stream
func (s *TradeUpdateStream) sendMessage(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isConnected || s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(msg)
}

// IsConnected returns whether the stream is connected
func (s *TradeUpdateStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// LastMessageTime returns the time of the last received message
func (s *TradeUpdateStream) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessageTime
}

// Close closes the stream connection
func (s *TradeUpdateStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.isConnected = false
	err := s.conn.Close()
	s.conn = nil
	return err
}

package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trading-bot/internal/models"
)

func newStreamServer(t *testing.T, authorized bool, updates []string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		assert.Equal(t, "auth", auth["action"])
		status := "unauthorized"
		if authorized && auth["key"] == "key" {
			status = "authorized"
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"authorization","data":{"status":"`+status+`","action":"authenticate"}}`))
		if status != "authorized" {
			return
		}

		var listen map[string]interface{}
		if err := conn.ReadJSON(&listen); err != nil {
			return
		}
		assert.Equal(t, "listen", listen["action"])
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"listening","data":{"streams":["trade_updates"]}}`))

		for _, u := range updates {
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte(u))
		}
		// Keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestTradeUpdateStream_DispatchesUpdates(t *testing.T) {
	server := newStreamServer(t, true, []string{
		`{"stream":"trade_updates","data":{"event":"fill","timestamp":"2024-01-02T15:00:00Z","order":{"id":"ord-1","client_order_id":"c1","status":"filled","filled_at":"2024-01-02T15:00:00Z","filled_avg_price":"101.5"}}}`,
		`not json`,
		`{"stream":"trade_updates","data":{"event":"new","order":{}}}`,
		`{"stream":"trade_updates","data":{"event":"canceled","order":{"id":"ord-2","status":"canceled"}}}`,
	})
	defer server.Close()

	stream := NewTradeUpdateStream(wsURL(server), "key", "secret", nil)
	received := make(chan TradeUpdate, 4)
	stream.AddHandler(func(ctx context.Context, update TradeUpdate) error {
		received <- update
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	var updates []TradeUpdate
	for len(updates) < 2 {
		select {
		case u := <-received:
			updates = append(updates, u)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for trade updates")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}

	assert.Equal(t, "ord-1", updates[0].BrokerOrderID)
	assert.Equal(t, models.ActionStatusFilled, updates[0].Status)
	require.NotNil(t, updates[0].FillPrice)
	assert.Equal(t, "101.5", updates[0].FillPrice.String())
	assert.True(t, updates[0].IsFinal())
	assert.Equal(t, models.ActionStatusCancelled, updates[1].Status)
}

func TestTradeUpdateStream_AuthorizationRejected(t *testing.T) {
	server := newStreamServer(t, false, nil)
	defer server.Close()

	stream := NewTradeUpdateStream(wsURL(server), "key", "secret", nil)
	stream.SetReconnectConfig(ReconnectConfig{
		MaxRetries:        1,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	err := stream.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorization rejected")
	assert.False(t, stream.IsConnected())
}

func TestParseTradeUpdate(t *testing.T) {
	raw := json.RawMessage(`{"event":"partial_fill","order":{"id":"o","status":"partially_filled"}}`)
	update, err := parseTradeUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusSubmitted, update.Status)
	assert.False(t, update.IsFinal())
}

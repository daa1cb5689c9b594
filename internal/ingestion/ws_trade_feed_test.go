package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func tradeJSON(wallet, sig string) map[string]any {
	return map[string]any{
		"type": "trade",
		"trade": map[string]any{
			"wallet":      wallet,
			"token":       "tokA",
			"side":        "buy",
			"sol_amount":  "2.5",
			"price":       "0.001",
			"signature":   sig,
			"event_index": 0,
			"timestamp":   1700000000000,
		},
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func fastConfig() *WSConfig {
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	return &cfg
}

func TestWSTradeFeed_Subscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var req wsSubscribe
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		if req.Op != "subscribe" {
			t.Errorf("expected subscribe, got %s", req.Op)
		}

		_ = c.WriteJSON(map[string]any{"type": "subscribed"})
		_ = c.WriteJSON(tradeJSON("other", "sig0"))
		_ = c.WriteJSON(tradeJSON(req.Wallet, "sig1"))
		_ = c.WriteJSON(map[string]any{"type": "trade", "trade": map[string]any{"side": "hold"}})
		_ = c.WriteJSON(tradeJSON(req.Wallet, "sig2"))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	feed := NewWSTradeFeed(wsURL(server), fastConfig(), nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "target")
	require.NoError(t, err)

	var got []*domain.TargetTrade
	for len(got) < 2 {
		select {
		case tr := <-ch:
			got = append(got, tr)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for trades")
		}
	}

	assert.Equal(t, "sig1", got[0].TxSignature)
	assert.Equal(t, "sig2", got[1].TxSignature)
	assert.Equal(t, domain.SideBuy, got[0].Side)
	assert.True(t, decimal.RequireFromString("2.5").Equal(got[0].SolAmount))

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWSTradeFeed_Reconnects(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var req wsSubscribe
		if err := c.ReadJSON(&req); err != nil {
			return
		}

		n := connections.Add(1)
		if n == 1 {
			// Drop the first connection after one trade.
			_ = c.WriteJSON(tradeJSON(req.Wallet, "before"))
			return
		}
		_ = c.WriteJSON(tradeJSON(req.Wallet, "after"))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	feed := NewWSTradeFeed(wsURL(server), fastConfig(), nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "target")
	require.NoError(t, err)

	var sigs []string
	for len(sigs) < 2 {
		select {
		case tr := <-ch:
			sigs = append(sigs, tr.TxSignature)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout, got %v", sigs)
		}
	}
	assert.Equal(t, []string{"before", "after"}, sigs)
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestWSTradeFeed_DialError(t *testing.T) {
	feed := NewWSTradeFeed("ws://127.0.0.1:1", fastConfig(), nil, nil)
	_, err := feed.Subscribe(context.Background(), "target")
	assert.Error(t, err)
}

func TestDecodeTradeMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		wantNil bool
		wantErr bool
	}{
		{"ack", `{"type":"subscribed"}`, true, false},
		{"server error", `{"type":"error","error":"boom"}`, true, true},
		{"bad json", `{`, true, true},
		{"missing payload", `{"type":"trade"}`, true, true},
		{"bad side", `{"type":"trade","trade":{"wallet":"w","token":"t","side":"x","sol_amount":"1","signature":"s"}}`, true, true},
		{"zero amount", `{"type":"trade","trade":{"wallet":"w","token":"t","side":"sell","sol_amount":"0","signature":"s"}}`, true, true},
		{"ok", `{"type":"trade","trade":{"wallet":"w","token":"t","side":"sell","sol_amount":1.25,"price":"0.5","signature":"s","event_index":2}}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeTradeMessage([]byte(tt.msg))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantNil, got == nil)
			if got != nil {
				assert.Equal(t, domain.SideSell, got.Side)
				assert.Equal(t, 2, got.EventIndex)
			}
		})
	}
}

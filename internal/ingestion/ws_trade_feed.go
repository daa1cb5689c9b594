package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/observability"
)

// WSConfig configures WebSocket feed behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the subscriber channel capacity.
	Buffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            1024,
	}
}

// WSTradeFeed implements TradeFeed over a JSON WebSocket stream.
//
// The client sends {"op":"subscribe","wallet":W} and receives
// {"type":"trade","trade":{...}} messages. Each subscription owns one
// connection and reconnects with exponential backoff. Trades replayed after a
// reconnect are deduplicated downstream by source trade id.
type WSTradeFeed struct {
	endpoint string
	config   WSConfig
	header   http.Header
	logger   logrus.FieldLogger
}

// NewWSTradeFeed creates a feed for the given ws:// or wss:// endpoint.
func NewWSTradeFeed(endpoint string, config *WSConfig, header http.Header, logger logrus.FieldLogger) *WSTradeFeed {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WSTradeFeed{
		endpoint: endpoint,
		config:   cfg,
		header:   header,
		logger:   logger.WithField("component", "ws-trade-feed"),
	}
}

// Subscribe connects and streams trades of wallet until ctx is cancelled.
// The initial connection must succeed; later failures are retried.
func (f *WSTradeFeed) Subscribe(ctx context.Context, wallet string) (<-chan *domain.TargetTrade, error) {
	conn, err := f.dial(ctx, wallet)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.TargetTrade, f.config.Buffer)
	go f.stream(ctx, conn, wallet, out)
	return out, nil
}

func (f *WSTradeFeed) stream(ctx context.Context, conn *websocket.Conn, wallet string, out chan<- *domain.TargetTrade) {
	defer close(out)
	log := f.logger.WithField("wallet", wallet)

	for {
		err := f.readLoop(ctx, conn, wallet, out)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("trade stream interrupted, reconnecting")

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = f.config.ReconnectDelay
		b.MaxInterval = f.config.MaxReconnectDelay
		b.MaxElapsedTime = 0

		err = backoff.RetryNotify(func() error {
			c, err := f.dial(ctx, wallet)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			log.WithError(err).WithField("retry_in", wait).Warn("reconnect failed")
		})
		if err != nil {
			return
		}
		log.Info("trade stream reconnected")
	}
}

// dial connects and sends the subscribe request.
func (f *WSTradeFeed) dial(ctx context.Context, wallet string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, f.header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteJSON(wsSubscribe{Op: "subscribe", Wallet: wallet}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}
	return conn, nil
}

// readLoop delivers trades until the connection fails or ctx is cancelled.
func (f *WSTradeFeed) readLoop(ctx context.Context, conn *websocket.Conn, wallet string, out chan<- *domain.TargetTrade) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(f.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				// WriteControl may run concurrently with reads.
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(f.config.WriteTimeout))
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		trade, err := decodeTradeMessage(message)
		if err != nil {
			f.logger.WithError(err).WithField("wallet", wallet).Warn("skipping malformed trade message")
			observability.RecordFeedDrop(DropMalformed)
			continue
		}
		if trade == nil || trade.TargetWallet != wallet {
			continue
		}

		select {
		case out <- trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var errUnknownSide = errors.New("unknown side")

// decodeTradeMessage returns nil for non-trade messages.
func decodeTradeMessage(data []byte) (*domain.TargetTrade, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch msg.Type {
	case "trade":
	case "error":
		return nil, fmt.Errorf("server error: %s", msg.Error)
	default:
		return nil, nil
	}
	if msg.Trade == nil {
		return nil, errors.New("trade message without payload")
	}

	t := msg.Trade
	side := domain.OrderSide(t.Side)
	if !side.IsValid() {
		return nil, fmt.Errorf("%w: %q", errUnknownSide, t.Side)
	}
	if t.Wallet == "" || t.Token == "" || t.Signature == "" {
		return nil, errors.New("trade missing wallet, token or signature")
	}
	if !t.SolAmount.IsPositive() {
		return nil, fmt.Errorf("non-positive sol_amount %s", t.SolAmount)
	}

	return &domain.TargetTrade{
		TargetWallet: t.Wallet,
		TokenAddress: t.Token,
		Side:         side,
		SolAmount:    t.SolAmount,
		Price:        t.Price,
		TxSignature:  t.Signature,
		EventIndex:   t.EventIndex,
		Timestamp:    t.Timestamp,
	}, nil
}

// WebSocket message types

type wsSubscribe struct {
	Op     string `json:"op"`
	Wallet string `json:"wallet"`
}

type wsMessage struct {
	Type  string   `json:"type"`
	Trade *wsTrade `json:"trade,omitempty"`
	Error string   `json:"error,omitempty"`
}

type wsTrade struct {
	Wallet     string          `json:"wallet"`
	Token      string          `json:"token"`
	Side       string          `json:"side"`
	SolAmount  decimal.Decimal `json:"sol_amount"`
	Price      decimal.Decimal `json:"price"`
	Signature  string          `json:"signature"`
	EventIndex int             `json:"event_index"`
	Timestamp  int64           `json:"timestamp"`
}

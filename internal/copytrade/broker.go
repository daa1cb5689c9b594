// Package copytrade mirrors target wallet trades into follower orders.
package copytrade

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-copytrade-lab/internal/domain"
)

var (
	// ErrOrderUnknown is returned by QueryStatus when the broker never received the order.
	ErrOrderUnknown = errors.New("order unknown to broker")

	// ErrNoPrice is returned when no price is available for a token.
	ErrNoPrice = errors.New("no price for token")
)

// FillStatus is the broker-side state of an order.
type FillStatus string

const (
	FillPending  FillStatus = "pending"
	FillFilled   FillStatus = "filled"
	FillRejected FillStatus = "rejected"
)

// SubmitRequest is an order sent to the signer/broker.
type SubmitRequest struct {
	SourceTradeID  string
	FollowerWallet string
	TokenAddress   string
	Side           domain.OrderSide
	Size           decimal.Decimal // SOL
}

// Fill is the broker's answer for an order.
type Fill struct {
	BrokerOrderID string
	Status        FillStatus
	Price         decimal.Decimal // SOL per token, set when filled
	Reason        string          // set when rejected
}

// Broker is the external signer/broker.
//
// Submit returns *domain.SubmitTimeoutError when the outcome is unknown; callers
// must reconcile with QueryStatus before submitting again. Brokers treat
// SourceTradeID as an idempotency key.
type Broker interface {
	Submit(ctx context.Context, req SubmitRequest) (Fill, error)
	QueryStatus(ctx context.Context, sourceTradeID string) (Fill, error)
	Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

// PriceObserver receives prices seen on the target trade feed.
type PriceObserver interface {
	ObservePrice(tokenAddress string, price decimal.Decimal)
}

// PaperBroker fills orders immediately at the last observed price.
type PaperBroker struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	orders map[string]Fill // keyed by source trade id
}

// NewPaperBroker creates an empty paper broker.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		prices: make(map[string]decimal.Decimal),
		orders: make(map[string]Fill),
	}
}

// ObservePrice records the latest price of a token.
func (b *PaperBroker) ObservePrice(tokenAddress string, price decimal.Decimal) {
	if price.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[tokenAddress] = price
}

// Submit fills the order at the current price, or rejects it when none is known.
// Resubmitting a known order returns the original fill.
func (b *PaperBroker) Submit(ctx context.Context, req SubmitRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if fill, ok := b.orders[req.SourceTradeID]; ok {
		return fill, nil
	}

	fill := Fill{BrokerOrderID: "paper-" + uuid.NewString()}
	price, ok := b.prices[req.TokenAddress]
	switch {
	case !ok:
		fill.Status = FillRejected
		fill.Reason = "no-price"
	case req.Size.Sign() <= 0:
		fill.Status = FillRejected
		fill.Reason = "invalid-size"
	default:
		fill.Status = FillFilled
		fill.Price = price
	}
	b.orders[req.SourceTradeID] = fill
	return fill, nil
}

// QueryStatus returns the stored fill. Returns ErrOrderUnknown if never submitted.
func (b *PaperBroker) QueryStatus(_ context.Context, sourceTradeID string) (Fill, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fill, ok := b.orders[sourceTradeID]
	if !ok {
		return Fill{}, ErrOrderUnknown
	}
	return fill, nil
}

// Price returns the last observed price. Returns ErrNoPrice if none.
func (b *PaperBroker) Price(_ context.Context, tokenAddress string) (decimal.Decimal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	price, ok := b.prices[tokenAddress]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

// Compile-time interface check.
var (
	_ Broker        = (*PaperBroker)(nil)
	_ PriceObserver = (*PaperBroker)(nil)
)

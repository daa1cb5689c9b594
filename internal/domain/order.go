package domain

import "github.com/shopspring/decimal"

// OrderSide is the side of a trade.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// IsValid checks if the side is a known value.
func (s OrderSide) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// TargetTrade is a trade executed by a watched target wallet.
type TargetTrade struct {
	TargetWallet string
	TokenAddress string
	Side         OrderSide
	SolAmount    decimal.Decimal // size in the target wallet's native unit
	Price        decimal.Decimal // SOL per token at execution
	TxSignature  string
	EventIndex   int
	Timestamp    int64 // ms
}

// OrderStatus is the lifecycle status of a mirrored order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderRejected  OrderStatus = "rejected"
	OrderSkipped   OrderStatus = "skipped"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderSkipped
}

// CanTransitionTo enforces monotonic status progression:
// pending -> submitted|rejected|skipped, submitted -> filled|rejected.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderSubmitted || next == OrderRejected || next == OrderSkipped
	case OrderSubmitted:
		return next == OrderFilled || next == OrderRejected
	default:
		return false
	}
}

// Skip reasons are machine-readable so consumers can explain why a trade was not mirrored.
const (
	SkipReasonOutsideSchedule = "outside-schedule"
	SkipReasonBelowMinimum    = "below-minimum"
	SkipReasonRiskHalted      = "risk-halted"
	SkipReasonMaxPositions    = "max-positions"
	SkipReasonEmergencyStop   = "emergency-stop"
	SkipReasonNoPosition      = "no-open-position"
	SkipReasonConfigMissing   = "config-missing"
	SkipReasonDuplicate       = "duplicate"
)

// MirroredOrder is the follower's copy of one target trade.
// Corresponds to mirrored_orders table, keyed by source_trade_id.
type MirroredOrder struct {
	SourceTradeID  string          `json:"source_trade_id"` // idempotency key
	SessionID      string          `json:"session_id"`
	FollowerWallet string          `json:"follower_wallet"`
	TargetWallet   string          `json:"target_wallet"`
	TokenAddress   string          `json:"token_address"`
	Side           OrderSide       `json:"side"`
	Size           decimal.Decimal `json:"size"` // SOL
	Status         OrderStatus     `json:"status"`
	Reason         string          `json:"reason,omitempty"` // skip/reject reason, empty otherwise
	BrokerOrderID  string          `json:"broker_order_id,omitempty"`
	FillPrice      decimal.Decimal `json:"fill_price"`
	ConfigVersion  int             `json:"config_version"`
	CreatedAt      int64           `json:"created_at"` // ms
	UpdatedAt      int64           `json:"updated_at"` // ms
}

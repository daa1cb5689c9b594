package domain

import "github.com/shopspring/decimal"

// GovernorState is the Risk Governor state for a trading day.
type GovernorState string

const (
	GovernorActive    GovernorState = "ACTIVE"
	GovernorThrottled GovernorState = "THROTTLED"
	GovernorHalted    GovernorState = "HALTED"
)

// RiskState is per follower, per trading day. Keyed by (follower_id, trading_day).
type RiskState struct {
	FollowerID        string          `json:"follower_id"`
	TradingDay        string          `json:"trading_day"` // YYYY-MM-DD in the configured timezone
	RealizedLossToday decimal.Decimal `json:"realized_loss_today"`
	OpenPositionCount int             `json:"open_position_count"`
	State             GovernorState   `json:"state"`
	HaltReason        string          `json:"halt_reason,omitempty"`
	UpdatedAt         int64           `json:"updated_at"` // ms
}

// Position is an open mirrored buy tracked for stop-loss / take-profit exits.
type Position struct {
	SourceTradeID string          `json:"source_trade_id"`
	TokenAddress  string          `json:"token_address"`
	Size          decimal.Decimal `json:"size"`        // SOL cost basis still open
	Quantity      decimal.Decimal `json:"quantity"`    // tokens held
	EntryPrice    decimal.Decimal `json:"entry_price"` // average SOL per token
	ProfitTaken   bool            `json:"profit_taken"`
	OpenedAt      int64           `json:"opened_at"` // ms
}

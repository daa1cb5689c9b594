package domain

import "github.com/shopspring/decimal"

// TradingMode selects where mirrored orders are sent.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// IsValid checks if the mode is a known value.
func (m TradingMode) IsValid() bool {
	return m == ModePaper || m == ModeLive
}

// Budget is the follower's capital allocated to copy trading.
type Budget struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Schedule is the trading window for a follower session.
// Dates are YYYY-MM-DD, daily times are HH:MM, both in Timezone.
type Schedule struct {
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date,omitempty"`
	DailyStart  string  `json:"daily_start"`
	DailyEnd    string  `json:"daily_end"`
	Timezone    string  `json:"timezone"`
	RepeatDaily bool    `json:"repeat_daily"`
}

// ProrationRule names the sizing rule. Only the capped linear rule is implemented.
type ProrationRule string

const ProrationCappedLinear ProrationRule = "capped_linear"

// RiskConfig holds sizing and risk limits for a follower session.
type RiskConfig struct {
	MaxTradeSize             decimal.Decimal `json:"max_trade_size"`
	ProrationRule            ProrationRule   `json:"proration_rule"`
	SmallTradeMultiplier     decimal.Decimal `json:"small_trade_multiplier"`
	LargeTradeBudgetFraction decimal.Decimal `json:"large_trade_budget_fraction"` // default 0.10
	MinTradeUnit             decimal.Decimal `json:"min_trade_unit"`
	ProfitTakingMultiplier   decimal.Decimal `json:"profit_taking_multiplier"`
	MaxProfitTakingPercent   decimal.Decimal `json:"max_profit_taking_percent"`
	StopLossPercent          decimal.Decimal `json:"stop_loss_percent"`
	DailyLossLimit           decimal.Decimal `json:"daily_loss_limit"`
	WarningThreshold         decimal.Decimal `json:"warning_threshold"` // fraction of DailyLossLimit, default 0.8
	MaxPositions             int             `json:"max_positions"`
}

// SecurityConfig describes follower wallets. Key custody is external.
type SecurityConfig struct {
	UseReserveWallet          bool    `json:"use_reserve_wallet"`
	ReserveWalletAddress      *string `json:"reserve_wallet_address,omitempty"`
	TradingWalletAddress      *string `json:"trading_wallet_address,omitempty"`
	RequireAllocationApproval bool    `json:"require_allocation_approval"`
}

// CopyTradeConfig is one immutable version of a follower session's configuration.
// Corresponds to copy_trade_configs table; (session_id, version) is the key.
type CopyTradeConfig struct {
	SessionID    string         `json:"session_id"`
	Version      int            `json:"version"`
	TargetWallet string         `json:"target_wallet"`
	Mode         TradingMode    `json:"mode"`
	Budget       Budget         `json:"budget"`
	Schedule     Schedule       `json:"schedule"`
	Risk         RiskConfig     `json:"risk"`
	Security     SecurityConfig `json:"security"`
	CreatedAt    int64          `json:"created_at"` // ms
}

// FollowerWallet returns the wallet orders are placed for.
// Falls back to the session id when no trading wallet is configured (paper mode).
func (c *CopyTradeConfig) FollowerWallet() string {
	if c.Security.TradingWalletAddress != nil && *c.Security.TradingWalletAddress != "" {
		return *c.Security.TradingWalletAddress
	}
	return c.SessionID
}

// Default risk values applied when a config leaves them zero.
var (
	DefaultLargeTradeBudgetFraction = decimal.NewFromFloat(0.10)
	DefaultWarningThreshold         = decimal.NewFromFloat(0.8)
	DefaultMinTradeUnit             = decimal.New(1, -9) // one lamport
)

// WithDefaults returns a copy with unset risk fields defaulted.
func (c CopyTradeConfig) WithDefaults() CopyTradeConfig {
	if c.Risk.LargeTradeBudgetFraction.IsZero() {
		c.Risk.LargeTradeBudgetFraction = DefaultLargeTradeBudgetFraction
	}
	if c.Risk.WarningThreshold.IsZero() {
		c.Risk.WarningThreshold = DefaultWarningThreshold
	}
	if c.Risk.MinTradeUnit.IsZero() {
		c.Risk.MinTradeUnit = DefaultMinTradeUnit
	}
	if c.Risk.ProrationRule == "" {
		c.Risk.ProrationRule = ProrationCappedLinear
	}
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	return c
}

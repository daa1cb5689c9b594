package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"solana-copytrade-lab/internal/domain"
)

// Exit reasons.
const (
	ExitStopLoss   = "stop-loss"
	ExitTakeProfit = "take-profit"
)

var hundred = decimal.NewFromInt(100)

// ExitSignal asks the follower worker to sell part of a position.
type ExitSignal struct {
	TokenAddress  string
	SourceTradeID string // of the position's opening order
	Reason        string
	Fraction      decimal.Decimal // of the remaining position, (0,1]
	Price         decimal.Decimal
}

// EvaluateExit decides whether a position should be exited at price.
// Stop-loss closes the whole position when price <= entry * (1 - StopLossPercent/100).
// Take-profit sells MaxProfitTakingPercent of it once when price >= entry * ProfitTakingMultiplier.
// Stop-loss wins when both apply.
func EvaluateExit(p domain.Position, price decimal.Decimal, cfg domain.RiskConfig) (ExitSignal, bool) {
	if price.Sign() <= 0 || p.EntryPrice.Sign() <= 0 {
		return ExitSignal{}, false
	}

	sig := ExitSignal{
		TokenAddress:  p.TokenAddress,
		SourceTradeID: p.SourceTradeID,
		Price:         price,
	}

	if cfg.StopLossPercent.Sign() > 0 {
		floor := p.EntryPrice.Mul(decimal.NewFromInt(1).Sub(cfg.StopLossPercent.Div(hundred)))
		if price.LessThanOrEqual(floor) {
			sig.Reason = ExitStopLoss
			sig.Fraction = decimal.NewFromInt(1)
			return sig, true
		}
	}

	if !p.ProfitTaken && cfg.ProfitTakingMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		target := p.EntryPrice.Mul(cfg.ProfitTakingMultiplier)
		if price.GreaterThanOrEqual(target) {
			fraction := cfg.MaxProfitTakingPercent.Div(hundred)
			if fraction.Sign() <= 0 || fraction.GreaterThan(decimal.NewFromInt(1)) {
				fraction = decimal.NewFromInt(1)
			}
			sig.Reason = ExitTakeProfit
			sig.Fraction = fraction
			return sig, true
		}
	}

	return ExitSignal{}, false
}

func sortPositions(ps []domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].OpenedAt != ps[j].OpenedAt {
			return ps[i].OpenedAt < ps[j].OpenedAt
		}
		return ps[i].TokenAddress < ps[j].TokenAddress
	})
}

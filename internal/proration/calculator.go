// Package proration sizes a follower's mirrored trade from a target trade.
package proration

import (
	"github.com/shopspring/decimal"

	"solana-copytrade-lab/internal/domain"
)

// Precision is the number of decimal places kept (one lamport).
const Precision int32 = 9

// Decision is the outcome of sizing a trade. When Skip is true Size is zero.
type Decision struct {
	Size   decimal.Decimal
	Skip   bool
	Reason string
	Large  bool // target trade exceeded MaxTradeSize
}

// Calculate returns the follower size for a target trade of size target.
//
// Small trades (target <= MaxTradeSize) scale linearly:
//
//	F = target * SmallTradeMultiplier
//
// Large trades keep scaling linearly but are capped:
//
//	F = min(target * m, max(MaxTradeSize * m, LargeTradeBudgetFraction * budget))
//
// The cap never falls below the value at the boundary, so F is continuous and
// non-decreasing in target. F is truncated to Precision and skipped with
// "below-minimum" when it is not positive or below MinTradeUnit.
func Calculate(target decimal.Decimal, budget domain.Budget, risk domain.RiskConfig) Decision {
	if target.Sign() <= 0 {
		return skip()
	}

	m := risk.SmallTradeMultiplier
	linear := target.Mul(m)

	var size decimal.Decimal
	large := target.GreaterThan(risk.MaxTradeSize)
	if !large {
		size = linear
	} else {
		fraction := risk.LargeTradeBudgetFraction
		if fraction.IsZero() {
			fraction = domain.DefaultLargeTradeBudgetFraction
		}
		boundary := risk.MaxTradeSize.Mul(m)
		budgetCap := budget.Amount.Mul(fraction)
		size = decimal.Min(linear, decimal.Max(boundary, budgetCap))
	}

	size = size.Truncate(Precision)

	minUnit := risk.MinTradeUnit
	if minUnit.IsZero() {
		minUnit = domain.DefaultMinTradeUnit
	}
	if size.Sign() <= 0 || size.LessThan(minUnit) {
		d := skip()
		d.Large = large
		return d
	}

	return Decision{Size: size, Large: large}
}

func skip() Decision {
	return Decision{Size: decimal.Zero, Skip: true, Reason: domain.SkipReasonBelowMinimum}
}

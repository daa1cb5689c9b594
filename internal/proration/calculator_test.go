package proration

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"solana-copytrade-lab/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func riskConfig() domain.RiskConfig {
	return domain.RiskConfig{
		MaxTradeSize:             d("30"),
		SmallTradeMultiplier:     d("0.05"),
		LargeTradeBudgetFraction: d("0.10"),
		MinTradeUnit:             d("0.001"),
	}
}

func TestCalculate(t *testing.T) {
	budget := domain.Budget{Amount: d("100"), Currency: "SOL"}

	tests := []struct {
		name     string
		target   string
		budget   domain.Budget
		wantSize string
		wantSkip bool
		large    bool
	}{
		{name: "small trade example", target: "10", budget: budget, wantSize: "0.5"},
		{name: "exactly at max trade size", target: "30", budget: budget, wantSize: "1.5"},
		{name: "large trade capped by budget fraction", target: "500", budget: budget, wantSize: "10", large: true},
		{name: "large trade below cap stays linear", target: "100", budget: budget, wantSize: "5", large: true},
		{
			name:     "small budget cap never below boundary",
			target:   "500",
			budget:   domain.Budget{Amount: d("5"), Currency: "SOL"},
			wantSize: "1.5",
			large:    true,
		},
		{name: "below minimum", target: "0.01", budget: budget, wantSkip: true},
		{name: "zero target", target: "0", budget: budget, wantSkip: true},
		{name: "negative target", target: "-3", budget: budget, wantSkip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(d(tt.target), tt.budget, riskConfig())
			assert.Equal(t, tt.wantSkip, got.Skip)
			if tt.wantSkip {
				assert.Equal(t, domain.SkipReasonBelowMinimum, got.Reason)
				assert.True(t, got.Size.IsZero())
				return
			}
			assert.True(t, d(tt.wantSize).Equal(got.Size), "got %s want %s", got.Size, tt.wantSize)
			assert.Equal(t, tt.large, got.Large)
		})
	}
}

func TestCalculate_ContinuousAtBoundary(t *testing.T) {
	budget := domain.Budget{Amount: d("1"), Currency: "SOL"}
	risk := riskConfig()

	at := Calculate(d("30"), budget, risk)
	above := Calculate(d("30.000001"), budget, risk)

	assert.False(t, at.Skip)
	assert.False(t, above.Skip)
	assert.True(t, above.Size.GreaterThanOrEqual(at.Size), "size must not drop past the boundary")
}

func TestCalculate_MonotonicInTarget(t *testing.T) {
	budget := domain.Budget{Amount: d("50"), Currency: "SOL"}
	risk := riskConfig()

	prev := decimal.Zero
	for _, target := range []string{"1", "5", "29.9", "30", "31", "60", "100", "1000"} {
		got := Calculate(d(target), budget, risk)
		assert.True(t, got.Size.GreaterThanOrEqual(prev), "target %s", target)
		prev = got.Size
	}
}

func TestCalculate_TruncatesToLamports(t *testing.T) {
	risk := riskConfig()
	risk.SmallTradeMultiplier = d("0.3333333333333")
	risk.MinTradeUnit = decimal.Zero

	got := Calculate(d("1"), domain.Budget{Amount: d("100")}, risk)
	assert.Equal(t, "0.333333333", got.Size.String())
}

func TestCalculate_DefaultsWhenUnset(t *testing.T) {
	risk := domain.RiskConfig{
		MaxTradeSize:         d("1"),
		SmallTradeMultiplier: d("1"),
	}

	// cap = max(1, 0.10*100) = 10
	got := Calculate(d("50"), domain.Budget{Amount: d("100")}, risk)
	assert.True(t, d("10").Equal(got.Size))

	// one lamport is tradable with the default minimum
	got = Calculate(d("0.000000001"), domain.Budget{Amount: d("100")}, risk)
	assert.False(t, got.Skip)
}

package configstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"filippo.io/edwards25519"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/solana"
	"solana-copytrade-lab/internal/storage"
	"solana-copytrade-lab/internal/storage/memory"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// wallet returns the base58 encoding of k·G, a valid keypair-style address.
func wallet(t *testing.T, k byte) string {
	t.Helper()
	var b [32]byte
	b[0] = k
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	require.NoError(t, err)
	addr, err := solana.EncodeAddress(new(edwards25519.Point).ScalarBaseMult(s).Bytes())
	require.NoError(t, err)
	return addr
}

func offCurve(t *testing.T) string {
	t.Helper()
	var b [32]byte
	b[0] = 2
	addr, err := solana.EncodeAddress(b[:])
	require.NoError(t, err)
	return addr
}

func ptr(s string) *string { return &s }

func validConfig(t *testing.T) *domain.CopyTradeConfig {
	return &domain.CopyTradeConfig{
		SessionID:    "session-1",
		TargetWallet: wallet(t, 7),
		Mode:         domain.ModePaper,
		Budget:       domain.Budget{Amount: decimal.NewFromInt(50)},
		Schedule: domain.Schedule{
			StartDate:   "2026-10-01",
			DailyStart:  "09:00",
			DailyEnd:    "17:00",
			Timezone:    "America/New_York",
			RepeatDaily: true,
		},
		Risk: domain.RiskConfig{
			MaxTradeSize:           decimal.NewFromInt(5),
			SmallTradeMultiplier:   decimal.RequireFromString("0.5"),
			ProfitTakingMultiplier: decimal.NewFromInt(3),
			MaxProfitTakingPercent: decimal.NewFromInt(50),
			StopLossPercent:        decimal.NewFromInt(25),
			DailyLossLimit:         decimal.NewFromInt(10),
			MaxPositions:           5,
		},
	}
}

func newService(t *testing.T) (*Service, *memory.CopyTradeConfigStore) {
	t.Helper()
	store := memory.NewCopyTradeConfigStore()
	logger, _ := test.NewNullLogger()
	return NewServiceWithClock(store, func() time.Time { return now }, logger), store
}

func TestService_SaveVersions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Save(ctx, validConfig(t))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, now.UnixMilli(), first.CreatedAt)
	assert.Equal(t, "SOL", first.Budget.Currency)
	assert.True(t, domain.DefaultWarningThreshold.Equal(first.Risk.WarningThreshold))
	assert.Equal(t, domain.ProrationCappedLinear, first.Risk.ProrationRule)

	cfg := validConfig(t)
	cfg.Budget.Amount = decimal.NewFromInt(80)
	second, err := svc.Save(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	latest, err := svc.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.True(t, decimal.NewFromInt(80).Equal(latest.Budget.Amount))

	v1, err := svc.GetVersion(ctx, "session-1", 1)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(v1.Budget.Amount))

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_RejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CopyTradeConfig)
		field  string
	}{
		{"missing session", func(c *domain.CopyTradeConfig) { c.SessionID = "" }, "session_id"},
		{"malformed target", func(c *domain.CopyTradeConfig) { c.TargetWallet = "not-base58!" }, "target_wallet"},
		{"off-curve target", func(c *domain.CopyTradeConfig) { c.TargetWallet = offCurve(t) }, "target_wallet"},
		{"unknown mode", func(c *domain.CopyTradeConfig) { c.Mode = "yolo" }, "mode"},
		{"zero budget", func(c *domain.CopyTradeConfig) { c.Budget.Amount = decimal.Zero }, "budget.amount"},
		{"negative budget", func(c *domain.CopyTradeConfig) { c.Budget.Amount = decimal.NewFromInt(-1) }, "budget.amount"},
		{"foreign currency", func(c *domain.CopyTradeConfig) { c.Budget.Currency = "USD" }, "budget.currency"},
		{"inverted daily window", func(c *domain.CopyTradeConfig) {
			c.Schedule.DailyStart = "22:00"
			c.Schedule.DailyEnd = "02:00"
		}, "schedule.daily_end"},
		{"inverted window without repeat", func(c *domain.CopyTradeConfig) {
			c.Schedule.RepeatDaily = false
			c.Schedule.DailyStart = "18:00"
			c.Schedule.DailyEnd = "06:00"
		}, "schedule.daily_end"},
		{"unknown timezone", func(c *domain.CopyTradeConfig) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"end before start", func(c *domain.CopyTradeConfig) { c.Schedule.EndDate = ptr("2026-09-01") }, "schedule.end_date"},
		{"zero max trade size", func(c *domain.CopyTradeConfig) { c.Risk.MaxTradeSize = decimal.Zero }, "risk.max_trade_size"},
		{"zero multiplier", func(c *domain.CopyTradeConfig) { c.Risk.SmallTradeMultiplier = decimal.Zero }, "risk.small_trade_multiplier"},
		{"budget fraction above one", func(c *domain.CopyTradeConfig) {
			c.Risk.LargeTradeBudgetFraction = decimal.RequireFromString("1.5")
		}, "risk.large_trade_budget_fraction"},
		{"profit multiplier of one", func(c *domain.CopyTradeConfig) { c.Risk.ProfitTakingMultiplier = decimal.NewFromInt(1) }, "risk.profit_taking_multiplier"},
		{"stop loss of 100%", func(c *domain.CopyTradeConfig) { c.Risk.StopLossPercent = decimal.NewFromInt(100) }, "risk.stop_loss_percent"},
		{"negative loss limit", func(c *domain.CopyTradeConfig) { c.Risk.DailyLossLimit = decimal.NewFromInt(-1) }, "risk.daily_loss_limit"},
		{"negative max positions", func(c *domain.CopyTradeConfig) { c.Risk.MaxPositions = -1 }, "risk.max_positions"},
		{"unknown proration rule", func(c *domain.CopyTradeConfig) { c.Risk.ProrationRule = "step" }, "risk.proration_rule"},
		{"live without trading wallet", func(c *domain.CopyTradeConfig) { c.Mode = domain.ModeLive }, "security.trading_wallet_address"},
		{"invalid trading wallet", func(c *domain.CopyTradeConfig) { c.Security.TradingWalletAddress = ptr(offCurve(t)) }, "security.trading_wallet_address"},
		{"reserve without address", func(c *domain.CopyTradeConfig) { c.Security.UseReserveWallet = true }, "security.reserve_wallet_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)
			cfg := validConfig(t)
			tt.mutate(cfg)

			_, err := svc.Save(context.Background(), cfg)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))

			var cerr *domain.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)

			stored, err := store.ListLatest(context.Background())
			require.NoError(t, err)
			assert.Empty(t, stored, "rejected configs must not be stored")
		})
	}
}

func TestService_LiveModeWithWallets(t *testing.T) {
	svc, _ := newService(t)
	cfg := validConfig(t)
	cfg.Mode = domain.ModeLive
	cfg.Security = domain.SecurityConfig{
		UseReserveWallet:     true,
		ReserveWalletAddress: ptr(wallet(t, 9)),
		TradingWalletAddress: ptr(wallet(t, 11)),
	}

	stored, err := svc.Save(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, wallet(t, 11), stored.FollowerWallet())
}

func TestService_TradeableNow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.TradeableNow(ctx, "session-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Save(ctx, validConfig(t))
	require.NoError(t, err)

	// 12:00 UTC is 08:00 in New York, before the 09:00 window opens.
	ok, err := svc.TradeableNow(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

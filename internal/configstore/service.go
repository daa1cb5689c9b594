// Package configstore validates and versions copy-trade session configs.
// Invalid configs are rejected with *domain.ConfigurationError and never stored,
// so the orchestrator only ever reads configs that passed these checks.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/schedule"
	"solana-copytrade-lab/internal/solana"
	"solana-copytrade-lab/internal/storage"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Service fronts a CopyTradeConfigStore with validation.
type Service struct {
	store  storage.CopyTradeConfigStore
	gate   *schedule.Gate
	now    func() time.Time
	logger logrus.FieldLogger
}

// NewService creates a Service using the wall clock.
func NewService(store storage.CopyTradeConfigStore, logger logrus.FieldLogger) *Service {
	return NewServiceWithClock(store, time.Now, logger)
}

// NewServiceWithClock creates a Service with an injected clock (tests).
func NewServiceWithClock(store storage.CopyTradeConfigStore, now func() time.Time, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:  store,
		gate:   schedule.NewGateWithClock(now),
		now:    now,
		logger: logger.WithField("component", "configstore"),
	}
}

// Save validates cfg, applies defaults and stores it as the session's next version.
func (s *Service) Save(ctx context.Context, cfg *domain.CopyTradeConfig) (*domain.CopyTradeConfig, error) {
	if cfg == nil {
		return nil, &domain.ConfigurationError{Field: "config", Reason: "missing"}
	}
	normalized := cfg.WithDefaults()
	if normalized.Budget.Currency == "" {
		normalized.Budget.Currency = "SOL"
	}
	if err := Validate(&normalized); err != nil {
		s.logger.WithError(err).WithField("session", cfg.SessionID).Warn("config rejected")
		return nil, err
	}

	normalized.Version = 0
	normalized.CreatedAt = s.now().UnixMilli()
	stored, err := s.store.Save(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session": stored.SessionID,
		"version": stored.Version,
		"mode":    stored.Mode,
	}).Info("config saved")
	return stored, nil
}

// Get returns the active version of a session. Returns storage.ErrNotFound if not exists.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.CopyTradeConfig, error) {
	return s.store.GetLatest(ctx, sessionID)
}

// GetVersion returns a specific version of a session.
func (s *Service) GetVersion(ctx context.Context, sessionID string, version int) (*domain.CopyTradeConfig, error) {
	return s.store.GetVersion(ctx, sessionID, version)
}

// List returns the active version of every session.
func (s *Service) List(ctx context.Context) ([]*domain.CopyTradeConfig, error) {
	return s.store.ListLatest(ctx)
}

// TradeableNow reports whether the session's active schedule permits trading now.
func (s *Service) TradeableNow(ctx context.Context, sessionID string) (bool, error) {
	cfg, err := s.store.GetLatest(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.gate.TradeableNow(cfg.Schedule)
}

// Validate checks a config with defaults applied.
// Returns the first *domain.ConfigurationError found.
func Validate(cfg *domain.CopyTradeConfig) error {
	if cfg.SessionID == "" {
		return &domain.ConfigurationError{Field: "session_id", Reason: "required"}
	}
	if err := solana.ValidateWallet(cfg.TargetWallet); err != nil {
		return &domain.ConfigurationError{Field: "target_wallet", Reason: err.Error()}
	}
	if !cfg.Mode.IsValid() {
		return &domain.ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", cfg.Mode)}
	}

	if cfg.Budget.Amount.Sign() <= 0 {
		return &domain.ConfigurationError{Field: "budget.amount", Reason: "must be positive"}
	}
	if cfg.Budget.Currency != "SOL" {
		return &domain.ConfigurationError{Field: "budget.currency", Reason: "only SOL budgets are supported"}
	}

	if err := schedule.Validate(cfg.Schedule); err != nil {
		return err
	}
	if err := validateRisk(cfg.Risk); err != nil {
		return err
	}
	return validateSecurity(cfg)
}

func validateRisk(r domain.RiskConfig) error {
	checks := []struct {
		field string
		bad   bool
		msg   string
	}{
		{"risk.proration_rule", r.ProrationRule != domain.ProrationCappedLinear, fmt.Sprintf("unknown rule %q", r.ProrationRule)},
		{"risk.max_trade_size", r.MaxTradeSize.Sign() <= 0, "must be positive"},
		{"risk.small_trade_multiplier", r.SmallTradeMultiplier.Sign() <= 0, "must be positive"},
		{"risk.large_trade_budget_fraction", r.LargeTradeBudgetFraction.Sign() <= 0 || r.LargeTradeBudgetFraction.GreaterThan(one), "must be in (0, 1]"},
		{"risk.min_trade_unit", r.MinTradeUnit.IsNegative(), "must not be negative"},
		{"risk.profit_taking_multiplier", !r.ProfitTakingMultiplier.IsZero() && r.ProfitTakingMultiplier.LessThanOrEqual(one), "must be greater than 1, or 0 to disable"},
		{"risk.max_profit_taking_percent", r.MaxProfitTakingPercent.IsNegative() || r.MaxProfitTakingPercent.GreaterThan(hundred), "must be in [0, 100]"},
		{"risk.stop_loss_percent", r.StopLossPercent.IsNegative() || r.StopLossPercent.GreaterThanOrEqual(hundred), "must be in [0, 100)"},
		{"risk.daily_loss_limit", r.DailyLossLimit.IsNegative(), "must not be negative"},
		{"risk.warning_threshold", r.WarningThreshold.Sign() <= 0 || r.WarningThreshold.GreaterThan(one), "must be in (0, 1]"},
		{"risk.max_positions", r.MaxPositions < 0, "must not be negative"},
	}
	for _, c := range checks {
		if c.bad {
			return &domain.ConfigurationError{Field: c.field, Reason: c.msg}
		}
	}
	return nil
}

func validateSecurity(cfg *domain.CopyTradeConfig) error {
	sec := cfg.Security

	if sec.TradingWalletAddress != nil && *sec.TradingWalletAddress != "" {
		if err := solana.ValidateWallet(*sec.TradingWalletAddress); err != nil {
			return &domain.ConfigurationError{Field: "security.trading_wallet_address", Reason: err.Error()}
		}
	} else if cfg.Mode == domain.ModeLive {
		return &domain.ConfigurationError{Field: "security.trading_wallet_address", Reason: "required in live mode"}
	}

	if sec.UseReserveWallet {
		if sec.ReserveWalletAddress == nil || *sec.ReserveWalletAddress == "" {
			return &domain.ConfigurationError{Field: "security.reserve_wallet_address", Reason: "required when use_reserve_wallet is set"}
		}
		if err := solana.ValidateWallet(*sec.ReserveWalletAddress); err != nil {
			return &domain.ConfigurationError{Field: "security.reserve_wallet_address", Reason: err.Error()}
		}
	}
	return nil
}

// IsConfigurationError reports whether err is a validation failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, domain.ErrConfiguration)
}

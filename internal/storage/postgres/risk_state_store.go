package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// RiskStateStore implements storage.RiskStateStore using PostgreSQL.
type RiskStateStore struct {
	pool *Pool
}

// NewRiskStateStore creates a new RiskStateStore.
func NewRiskStateStore(pool *Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RiskStateStore = (*RiskStateStore)(nil)

// Upsert writes the state for its (follower, day).
func (s *RiskStateStore) Upsert(ctx context.Context, st *domain.RiskState) error {
	if st == nil || st.FollowerID == "" || st.TradingDay == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_states (
			follower_id, trading_day, realized_loss_today, open_position_count, state, halt_reason, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (follower_id, trading_day) DO UPDATE
		SET realized_loss_today = EXCLUDED.realized_loss_today,
		    open_position_count = EXCLUDED.open_position_count,
		    state = EXCLUDED.state,
		    halt_reason = EXCLUDED.halt_reason,
		    updated_at = EXCLUDED.updated_at
	`, st.FollowerID, st.TradingDay, st.RealizedLossToday, st.OpenPositionCount, string(st.State), st.HaltReason, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert risk state: %w", err)
	}
	return nil
}

// Get retrieves the state for a (follower, day). Returns ErrNotFound if not exists.
func (s *RiskStateStore) Get(ctx context.Context, followerID, tradingDay string) (*domain.RiskState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT follower_id, trading_day, realized_loss_today, open_position_count, state, halt_reason, updated_at
		FROM risk_states
		WHERE follower_id = $1 AND trading_day = $2
	`, followerID, tradingDay)
	return scanRiskState(row)
}

// GetLatest retrieves the most recent trading day's state. Returns ErrNotFound if not exists.
func (s *RiskStateStore) GetLatest(ctx context.Context, followerID string) (*domain.RiskState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT follower_id, trading_day, realized_loss_today, open_position_count, state, halt_reason, updated_at
		FROM risk_states
		WHERE follower_id = $1
		ORDER BY trading_day DESC
		LIMIT 1
	`, followerID)
	return scanRiskState(row)
}

func scanRiskState(row pgx.Row) (*domain.RiskState, error) {
	var st domain.RiskState
	var state string
	err := row.Scan(&st.FollowerID, &st.TradingDay, &st.RealizedLossToday, &st.OpenPositionCount, &state, &st.HaltReason, &st.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan risk state: %w", err)
	}
	st.State = domain.GovernorState(state)
	return &st, nil
}

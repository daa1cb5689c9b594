package postgres

import (
	"context"
	"fmt"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Upsert writes an open position.
func (s *PositionStore) Upsert(ctx context.Context, followerID string, p *domain.Position) error {
	if followerID == "" || p == nil || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO open_positions (
			follower_id, token_address, source_trade_id, size, quantity, entry_price, profit_taken, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (follower_id, token_address) DO UPDATE
		SET source_trade_id = EXCLUDED.source_trade_id,
		    size = EXCLUDED.size,
		    quantity = EXCLUDED.quantity,
		    entry_price = EXCLUDED.entry_price,
		    profit_taken = EXCLUDED.profit_taken
	`, followerID, p.TokenAddress, p.SourceTradeID, p.Size, p.Quantity, p.EntryPrice, p.ProfitTaken, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Delete removes a closed position.
func (s *PositionStore) Delete(ctx context.Context, followerID, tokenAddress string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM open_positions WHERE follower_id = $1 AND token_address = $2
	`, followerID, tokenAddress)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// List returns a follower's open positions ordered by opened_at ASC.
func (s *PositionStore) List(ctx context.Context, followerID string) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_trade_id, token_address, size, quantity, entry_price, profit_taken, opened_at
		FROM open_positions
		WHERE follower_id = $1
		ORDER BY opened_at ASC, token_address ASC
	`, followerID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.SourceTradeID, &p.TokenAddress, &p.Size, &p.Quantity, &p.EntryPrice, &p.ProfitTaken, &p.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// BuyEventStore implements storage.BuyEventStore using PostgreSQL.
type BuyEventStore struct {
	pool *Pool
}

// NewBuyEventStore creates a new BuyEventStore.
func NewBuyEventStore(pool *Pool) *BuyEventStore {
	return &BuyEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BuyEventStore = (*BuyEventStore)(nil)

const insertBuyQuery = `
	INSERT INTO buy_events (
		token_address, tx_signature, wallet_address, timestamp, sol_amount, market_cap_at_buy, cursor
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Insert adds a new buy. Returns ErrDuplicateKey if (token_address, tx_signature, wallet_address) exists.
func (s *BuyEventStore) Insert(ctx context.Context, b *domain.BuyEvent) error {
	if b == nil || b.TokenAddress == "" || b.WalletAddress == "" || b.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertBuyQuery,
		b.TokenAddress, b.TxSignature, b.WalletAddress, b.Timestamp, b.SolAmount, b.MarketCapAtBuy, b.Cursor,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert buy event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple buys atomically. Fails entire batch on any duplicate.
func (s *BuyEventStore) InsertBulk(ctx context.Context, buys []*domain.BuyEvent) error {
	if len(buys) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range buys {
		if b == nil || b.TokenAddress == "" || b.WalletAddress == "" || b.TxSignature == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertBuyQuery,
			b.TokenAddress, b.TxSignature, b.WalletAddress, b.Timestamp, b.SolAmount, b.MarketCapAtBuy, b.Cursor,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert buy event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByToken retrieves all buys for a token, ordered by timestamp ASC, wallet ASC.
func (s *BuyEventStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.BuyEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, token_address, timestamp, sol_amount, market_cap_at_buy, tx_signature, cursor
		FROM buy_events
		WHERE token_address = $1
		ORDER BY timestamp ASC, wallet_address ASC, tx_signature ASC
	`, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get buys by token: %w", err)
	}
	defer rows.Close()

	return scanBuys(rows)
}

// scanBuys scans multiple rows into a slice of BuyEvent.
func scanBuys(rows pgx.Rows) ([]*domain.BuyEvent, error) {
	var buys []*domain.BuyEvent
	for rows.Next() {
		var b domain.BuyEvent
		err := rows.Scan(
			&b.WalletAddress,
			&b.TokenAddress,
			&b.Timestamp,
			&b.SolAmount,
			&b.MarketCapAtBuy,
			&b.TxSignature,
			&b.Cursor,
		)
		if err != nil {
			return nil, fmt.Errorf("scan buy event: %w", err)
		}
		buys = append(buys, &b)
	}
	return buys, rows.Err()
}

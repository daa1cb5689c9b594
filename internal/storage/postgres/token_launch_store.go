package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// TokenLaunchStore implements storage.TokenLaunchStore using PostgreSQL.
type TokenLaunchStore struct {
	pool *Pool
}

// NewTokenLaunchStore creates a new TokenLaunchStore.
func NewTokenLaunchStore(pool *Pool) *TokenLaunchStore {
	return &TokenLaunchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenLaunchStore = (*TokenLaunchStore)(nil)

// Insert adds a new launch. Returns ErrDuplicateKey if address exists.
func (s *TokenLaunchStore) Insert(ctx context.Context, l *domain.TokenLaunch) error {
	if l == nil || l.Address == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_launches (address, symbol, launch_timestamp, peak_market_cap, cursor)
		VALUES ($1, $2, $3, $4, $5)
	`, l.Address, l.Symbol, l.LaunchTimestamp, l.PeakMarketCap, l.Cursor)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token launch: %w", err)
	}
	return nil
}

// GetByAddress retrieves a launch by token address. Returns ErrNotFound if not exists.
func (s *TokenLaunchStore) GetByAddress(ctx context.Context, address string) (*domain.TokenLaunch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address, symbol, launch_timestamp, peak_market_cap, cursor
		FROM token_launches
		WHERE address = $1
	`, address)

	l, err := scanLaunch(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token launch: %w", err)
	}
	return l, nil
}

// List retrieves all launches, ordered by launch_timestamp ASC, address ASC.
func (s *TokenLaunchStore) List(ctx context.Context) ([]*domain.TokenLaunch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, symbol, launch_timestamp, peak_market_cap, cursor
		FROM token_launches
		ORDER BY launch_timestamp ASC, address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list token launches: %w", err)
	}
	defer rows.Close()

	var launches []*domain.TokenLaunch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token launch: %w", err)
		}
		launches = append(launches, l)
	}
	return launches, rows.Err()
}

func scanLaunch(row pgx.Row) (*domain.TokenLaunch, error) {
	var l domain.TokenLaunch
	if err := row.Scan(&l.Address, &l.Symbol, &l.LaunchTimestamp, &l.PeakMarketCap, &l.Cursor); err != nil {
		return nil, err
	}
	return &l, nil
}

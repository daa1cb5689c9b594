package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// WalletTokenResultStore implements storage.WalletTokenResultStore using PostgreSQL.
type WalletTokenResultStore struct {
	pool *Pool
}

// NewWalletTokenResultStore creates a new WalletTokenResultStore.
func NewWalletTokenResultStore(pool *Pool) *WalletTokenResultStore {
	return &WalletTokenResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletTokenResultStore = (*WalletTokenResultStore)(nil)

// ReplaceForToken atomically replaces all results of a token.
func (s *WalletTokenResultStore) ReplaceForToken(ctx context.Context, tokenAddress string, results []*domain.WalletTokenResult) error {
	if tokenAddress == "" {
		return storage.ErrInvalidInput
	}
	for _, r := range results {
		if r == nil || r.TokenAddress != tokenAddress || r.WalletAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM wallet_token_results WHERE token_address = $1`, tokenAddress); err != nil {
		return fmt.Errorf("delete wallet token results: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO wallet_token_results (
				wallet_address, token_address, bucket, rank, sol_invested, entry_delay_ms, buy_timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.WalletAddress, r.TokenAddress, string(r.Bucket), r.Rank, r.SolInvested, r.EntryDelayMs, r.BuyTimestamp)
	}

	br := tx.SendBatch(ctx, batch)
	for range results {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert wallet token result: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTokens retrieves results for a set of tokens, ordered by token ASC, rank ASC.
func (s *WalletTokenResultStore) GetByTokens(ctx context.Context, tokenAddresses []string) ([]*domain.WalletTokenResult, error) {
	if len(tokenAddresses) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, token_address, bucket, rank, sol_invested, entry_delay_ms, buy_timestamp
		FROM wallet_token_results
		WHERE token_address = ANY($1)
		ORDER BY token_address ASC, rank ASC
	`, tokenAddresses)
	if err != nil {
		return nil, fmt.Errorf("get results by tokens: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// GetByWallet retrieves all results for a wallet, ordered by token ASC.
func (s *WalletTokenResultStore) GetByWallet(ctx context.Context, walletAddress string) ([]*domain.WalletTokenResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, token_address, bucket, rank, sol_invested, entry_delay_ms, buy_timestamp
		FROM wallet_token_results
		WHERE wallet_address = $1
		ORDER BY token_address ASC
	`, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("get results by wallet: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows pgx.Rows) ([]*domain.WalletTokenResult, error) {
	var results []*domain.WalletTokenResult
	for rows.Next() {
		var r domain.WalletTokenResult
		var bucket string
		err := rows.Scan(&r.WalletAddress, &r.TokenAddress, &bucket, &r.Rank, &r.SolInvested, &r.EntryDelayMs, &r.BuyTimestamp)
		if err != nil {
			return nil, fmt.Errorf("scan wallet token result: %w", err)
		}
		r.Bucket = domain.TimingBucket(bucket)
		results = append(results, &r)
	}
	return results, rows.Err()
}

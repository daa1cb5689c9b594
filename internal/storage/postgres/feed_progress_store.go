package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/storage"
)

// FeedProgressStore is a PostgreSQL implementation of storage.FeedProgressStore.
// Uses two tables:
//   - feed_progress: one row per feed with its last committed cursor
//   - stale_tokens: tokens whose data has a cursor gap
type FeedProgressStore struct {
	pool *Pool
}

// NewFeedProgressStore creates a new PostgreSQL feed progress store.
func NewFeedProgressStore(pool *Pool) *FeedProgressStore {
	return &FeedProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// GetCursor returns the last committed cursor for a feed.
func (s *FeedProgressStore) GetCursor(ctx context.Context, feed string) (*storage.FeedProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT feed, cursor, updated_at
		FROM feed_progress
		WHERE feed = $1
	`, feed)

	var progress storage.FeedProgress
	err := row.Scan(&progress.Feed, &progress.Cursor, &progress.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &progress, nil
}

// SetCursor saves the last committed cursor for a feed.
// Uses upsert to handle initial insert and subsequent updates.
func (s *FeedProgressStore) SetCursor(ctx context.Context, progress *storage.FeedProgress) error {
	if progress == nil || progress.Feed == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_progress (feed, cursor, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (feed) DO UPDATE
		SET cursor = EXCLUDED.cursor,
		    updated_at = EXCLUDED.updated_at
	`, progress.Feed, progress.Cursor, progress.UpdatedAt)

	return err
}

// MarkStale records that a token's data has a gap. The first mark wins.
func (s *FeedProgressStore) MarkStale(ctx context.Context, token *storage.StaleToken) error {
	if token == nil || token.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO stale_tokens (token_address, reason, marked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_address) DO NOTHING
	`, token.TokenAddress, token.Reason, token.MarkedAt)

	return err
}

// ClearStale removes the stale mark for a token.
func (s *FeedProgressStore) ClearStale(ctx context.Context, tokenAddress string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM stale_tokens WHERE token_address = $1`, tokenAddress)
	return err
}

// ListStale returns all stale tokens ordered by token address.
func (s *FeedProgressStore) ListStale(ctx context.Context) ([]*storage.StaleToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, reason, marked_at FROM stale_tokens ORDER BY token_address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*storage.StaleToken
	for rows.Next() {
		var st storage.StaleToken
		if err := rows.Scan(&st.TokenAddress, &st.Reason, &st.MarkedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, &st)
	}

	return tokens, rows.Err()
}

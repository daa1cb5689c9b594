package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// CopyTradeConfigStore implements storage.CopyTradeConfigStore using PostgreSQL.
// Each version is a row; the full config is kept as JSONB.
type CopyTradeConfigStore struct {
	pool *Pool
}

// NewCopyTradeConfigStore creates a new CopyTradeConfigStore.
func NewCopyTradeConfigStore(pool *Pool) *CopyTradeConfigStore {
	return &CopyTradeConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CopyTradeConfigStore = (*CopyTradeConfigStore)(nil)

// Save stores cfg as the next version of its session.
// A transaction-scoped advisory lock on the session serializes concurrent saves.
func (s *CopyTradeConfigStore) Save(ctx context.Context, cfg *domain.CopyTradeConfig) (*domain.CopyTradeConfig, error) {
	if cfg == nil || cfg.SessionID == "" {
		return nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cfg.SessionID); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM copy_trade_configs WHERE session_id = $1
	`, cfg.SessionID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next config version: %w", err)
	}

	stored := *cfg
	stored.Version = next
	doc, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO copy_trade_configs (session_id, version, target_wallet, mode, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, stored.SessionID, stored.Version, stored.TargetWallet, string(stored.Mode), doc, stored.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &stored, nil
}

// GetLatest returns the active version of a session. Returns ErrNotFound if not exists.
func (s *CopyTradeConfigStore) GetLatest(ctx context.Context, sessionID string) (*domain.CopyTradeConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT config FROM copy_trade_configs
		WHERE session_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, sessionID)
	return scanConfig(row)
}

// GetVersion returns a specific version. Returns ErrNotFound if not exists.
func (s *CopyTradeConfigStore) GetVersion(ctx context.Context, sessionID string, version int) (*domain.CopyTradeConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT config FROM copy_trade_configs
		WHERE session_id = $1 AND version = $2
	`, sessionID, version)
	return scanConfig(row)
}

// ListLatest returns the active version of every session, ordered by session_id ASC.
func (s *CopyTradeConfigStore) ListLatest(ctx context.Context) ([]*domain.CopyTradeConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (session_id) config
		FROM copy_trade_configs
		ORDER BY session_id ASC, version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list latest configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.CopyTradeConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func scanConfig(row pgx.Row) (*domain.CopyTradeConfig, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan config: %w", err)
	}

	var cfg domain.CopyTradeConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

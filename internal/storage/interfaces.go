package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solana-copytrade-lab/internal/domain"
)

// TokenLaunchStore provides access to token_launches storage.
type TokenLaunchStore interface {
	// Insert adds a new launch. Returns ErrDuplicateKey if address exists.
	Insert(ctx context.Context, l *domain.TokenLaunch) error

	// GetByAddress retrieves a launch by token address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.TokenLaunch, error)

	// List retrieves all launches, ordered by launch_timestamp ASC, address ASC.
	List(ctx context.Context) ([]*domain.TokenLaunch, error)
}

// BuyEventStore provides access to buy_events storage.
type BuyEventStore interface {
	// Insert adds a new buy. Returns ErrDuplicateKey if (token_address, tx_signature, wallet_address) exists.
	Insert(ctx context.Context, b *domain.BuyEvent) error

	// InsertBulk adds multiple buys atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, buys []*domain.BuyEvent) error

	// GetByToken retrieves all buys for a token, ordered by timestamp ASC, wallet ASC.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.BuyEvent, error)
}

// WalletTokenResultStore provides access to wallet_token_results storage.
// Keyed by (wallet_address, token_address).
type WalletTokenResultStore interface {
	// ReplaceForToken atomically replaces all results of a token.
	ReplaceForToken(ctx context.Context, tokenAddress string, results []*domain.WalletTokenResult) error

	// GetByTokens retrieves results for a set of tokens, ordered by token ASC, rank ASC.
	GetByTokens(ctx context.Context, tokenAddresses []string) ([]*domain.WalletTokenResult, error)

	// GetByWallet retrieves all results for a wallet, ordered by token ASC.
	GetByWallet(ctx context.Context, walletAddress string) ([]*domain.WalletTokenResult, error)
}

// CopyTradeConfigStore provides versioned access to copy_trade_configs storage.
// Versions are append-only; the highest version of a session is the active one.
type CopyTradeConfigStore interface {
	// Save stores cfg as the next version of its session and returns the stored copy
	// with Version assigned. Concurrent saves never produce the same version.
	Save(ctx context.Context, cfg *domain.CopyTradeConfig) (*domain.CopyTradeConfig, error)

	// GetLatest returns the active version of a session. Returns ErrNotFound if not exists.
	GetLatest(ctx context.Context, sessionID string) (*domain.CopyTradeConfig, error)

	// GetVersion returns a specific version. Returns ErrNotFound if not exists.
	GetVersion(ctx context.Context, sessionID string, version int) (*domain.CopyTradeConfig, error)

	// ListLatest returns the active version of every session, ordered by session_id ASC.
	ListLatest(ctx context.Context) ([]*domain.CopyTradeConfig, error)
}

// OrderUpdate is a status change applied to a mirrored order.
type OrderUpdate struct {
	Status        domain.OrderStatus
	Reason        string
	BrokerOrderID string
	FillPrice     *decimal.Decimal // nil leaves the stored value unchanged
	UpdatedAt     int64   // ms
}

// MirroredOrderStore provides access to mirrored_orders storage.
type MirroredOrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if source_trade_id exists.
	Insert(ctx context.Context, o *domain.MirroredOrder) error

	// Get retrieves an order by source trade id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, sourceTradeID string) (*domain.MirroredOrder, error)

	// UpdateStatus applies a monotonic status transition.
	// Returns ErrNotFound if the order does not exist and ErrInvalidTransition
	// if the current status cannot move to update.Status.
	UpdateStatus(ctx context.Context, sourceTradeID string, update OrderUpdate) (*domain.MirroredOrder, error)

	// ListBySession retrieves a session's orders, newest first, up to limit (0 = all).
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.MirroredOrder, error)

	// ListByStatus retrieves a session's orders in a given status, oldest first.
	ListByStatus(ctx context.Context, sessionID string, status domain.OrderStatus) ([]*domain.MirroredOrder, error)
}

// RiskStateStore provides access to risk_states storage, keyed by (follower_id, trading_day).
type RiskStateStore interface {
	// Upsert writes the state for its (follower, day).
	Upsert(ctx context.Context, s *domain.RiskState) error

	// Get retrieves the state for a (follower, day). Returns ErrNotFound if not exists.
	Get(ctx context.Context, followerID, tradingDay string) (*domain.RiskState, error)

	// GetLatest retrieves the most recent trading day's state. Returns ErrNotFound if not exists.
	GetLatest(ctx context.Context, followerID string) (*domain.RiskState, error)
}

// PositionStore provides access to open_positions storage, keyed by (follower_id, token_address).
type PositionStore interface {
	// Upsert writes an open position.
	Upsert(ctx context.Context, followerID string, p *domain.Position) error

	// Delete removes a closed position. Deleting a missing position is not an error.
	Delete(ctx context.Context, followerID, tokenAddress string) error

	// List returns a follower's open positions ordered by opened_at ASC.
	List(ctx context.Context, followerID string) ([]*domain.Position, error)
}

// ClassificationRecord is one wallet row of a stored snapshot.
type ClassificationRecord struct {
	CohortID       string
	ComputedAt     int64 // ms
	Status         domain.SnapshotStatus
	Classification domain.WalletClassification
}

// ClassificationHistoryStore provides append-only access to wallet_classifications history.
type ClassificationHistoryStore interface {
	// InsertSnapshot appends every row of a snapshot.
	// Returns ErrDuplicateKey if (cohort_id, computed_at) already exists.
	InsertSnapshot(ctx context.Context, snap *domain.ClassificationSnapshot) error

	// GetLatest rebuilds the most recent snapshot of a cohort. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, cohortID string) (*domain.ClassificationSnapshot, error)

	// GetWalletHistory returns a wallet's rows across snapshots, ordered by computed_at ASC.
	GetWalletHistory(ctx context.Context, walletAddress string) ([]*ClassificationRecord, error)
}

// SnapshotCache caches the latest classification snapshot per cohort.
type SnapshotCache interface {
	// Get returns a cached snapshot. Returns ErrNotFound on miss.
	Get(ctx context.Context, cohortID string) (*domain.ClassificationSnapshot, error)

	// Set caches a snapshot under its cohort id and under the "latest" alias.
	Set(ctx context.Context, snap *domain.ClassificationSnapshot, ttl time.Duration) error

	// GetLatest returns the most recently cached snapshot of any cohort. Returns ErrNotFound on miss.
	GetLatest(ctx context.Context) (*domain.ClassificationSnapshot, error)
}

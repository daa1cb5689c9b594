package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// MirroredOrderStore implements storage.MirroredOrderStore using PostgreSQL.
type MirroredOrderStore struct {
	pool *Pool
}

// NewMirroredOrderStore creates a new MirroredOrderStore.
func NewMirroredOrderStore(pool *Pool) *MirroredOrderStore {
	return &MirroredOrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MirroredOrderStore = (*MirroredOrderStore)(nil)

const orderColumns = `
	source_trade_id, session_id, follower_wallet, target_wallet, token_address, side, size,
	status, reason, broker_order_id, fill_price, config_version, created_at, updated_at
`

// Insert adds a new order. Returns ErrDuplicateKey if source_trade_id exists.
func (s *MirroredOrderStore) Insert(ctx context.Context, o *domain.MirroredOrder) error {
	if o == nil || o.SourceTradeID == "" || o.SessionID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO mirrored_orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		o.SourceTradeID,
		o.SessionID,
		o.FollowerWallet,
		o.TargetWallet,
		o.TokenAddress,
		string(o.Side),
		o.Size,
		string(o.Status),
		o.Reason,
		o.BrokerOrderID,
		o.FillPrice,
		o.ConfigVersion,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mirrored order: %w", err)
	}
	return nil
}

// Get retrieves an order by source trade id. Returns ErrNotFound if not exists.
func (s *MirroredOrderStore) Get(ctx context.Context, sourceTradeID string) (*domain.MirroredOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM mirrored_orders WHERE source_trade_id = $1`, sourceTradeID)

	o, err := scanOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mirrored order: %w", err)
	}
	return o, nil
}

// UpdateStatus applies a monotonic status transition.
// The row is locked for the read-check-write so concurrent updates serialize.
func (s *MirroredOrderStore) UpdateStatus(ctx context.Context, sourceTradeID string, update storage.OrderUpdate) (*domain.MirroredOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM mirrored_orders WHERE source_trade_id = $1 FOR UPDATE`, sourceTradeID)
	current, err := scanOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock mirrored order: %w", err)
	}
	if !current.Status.CanTransitionTo(update.Status) {
		return nil, storage.ErrInvalidTransition
	}

	current.Status = update.Status
	if update.Reason != "" {
		current.Reason = update.Reason
	}
	if update.BrokerOrderID != "" {
		current.BrokerOrderID = update.BrokerOrderID
	}
	if update.FillPrice != nil {
		current.FillPrice = *update.FillPrice
	}
	current.UpdatedAt = update.UpdatedAt

	_, err = tx.Exec(ctx, `
		UPDATE mirrored_orders
		SET status = $2, reason = $3, broker_order_id = $4, fill_price = $5, updated_at = $6
		WHERE source_trade_id = $1
	`, sourceTradeID, string(current.Status), current.Reason, current.BrokerOrderID, current.FillPrice, current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update mirrored order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return current, nil
}

// ListBySession retrieves a session's orders, newest first, up to limit (0 = all).
func (s *MirroredOrderStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.MirroredOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM mirrored_orders
		WHERE session_id = $1
		ORDER BY created_at DESC, source_trade_id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders by session: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// ListByStatus retrieves a session's orders in a given status, oldest first.
func (s *MirroredOrderStore) ListByStatus(ctx context.Context, sessionID string, status domain.OrderStatus) ([]*domain.MirroredOrder, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM mirrored_orders
		WHERE session_id = $1 AND status = $2
		ORDER BY created_at ASC, source_trade_id ASC`, sessionID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrder(row pgx.Row) (*domain.MirroredOrder, error) {
	var o domain.MirroredOrder
	var side, status string
	err := row.Scan(
		&o.SourceTradeID,
		&o.SessionID,
		&o.FollowerWallet,
		&o.TargetWallet,
		&o.TokenAddress,
		&side,
		&o.Size,
		&status,
		&o.Reason,
		&o.BrokerOrderID,
		&o.FillPrice,
		&o.ConfigVersion,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]*domain.MirroredOrder, error) {
	var orders []*domain.MirroredOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirrored order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

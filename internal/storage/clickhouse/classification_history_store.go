package clickhouse

import (
	"context"
	"fmt"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// ClassificationHistoryStore implements storage.ClassificationHistoryStore using ClickHouse.
//
// Every snapshot writes one header row with an empty wallet_address, followed
// by one row per classified wallet. The header keeps EMPTY snapshots retrievable.
type ClassificationHistoryStore struct {
	conn *Conn
}

// NewClassificationHistoryStore creates a new ClassificationHistoryStore.
func NewClassificationHistoryStore(conn *Conn) *ClassificationHistoryStore {
	return &ClassificationHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ClassificationHistoryStore = (*ClassificationHistoryStore)(nil)

const classificationColumns = `
	cohort_id, computed_at, status, tracked_tokens, stale_tokens,
	wallet_address, tier, total_wins, avg_entry_delay_ms,
	le_5m, le_15m, le_30m, le_60m, tokens
`

// InsertSnapshot appends every row of a snapshot. Returns ErrDuplicateKey if
// (cohort_id, computed_at) already exists.
func (s *ClassificationHistoryStore) InsertSnapshot(ctx context.Context, snap *domain.ClassificationSnapshot) error {
	if snap == nil || snap.CohortID == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce keys; append-only semantics are checked here.
	exists, err := s.exists(ctx, snap.CohortID, snap.ComputedAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO wallet_classifications ("+classificationColumns+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	stale := snap.StaleTokens
	if stale == nil {
		stale = []string{}
	}

	// Header row.
	err = batch.Append(
		snap.CohortID, snap.ComputedAt, string(snap.Status), uint32(snap.TrackedTokens), stale,
		"", "", uint32(0), int64(0),
		uint32(0), uint32(0), uint32(0), uint32(0), []string{},
	)
	if err != nil {
		return fmt.Errorf("append header: %w", err)
	}

	for _, c := range snap.Classifications {
		tokens := c.Tokens
		if tokens == nil {
			tokens = []string{}
		}
		err = batch.Append(
			snap.CohortID, snap.ComputedAt, string(snap.Status), uint32(snap.TrackedTokens), stale,
			c.WalletAddress, string(c.Tier), uint32(c.TotalWins), c.AvgEntryDelayMs,
			uint32(c.BucketCounts[domain.BucketLE5m]),
			uint32(c.BucketCounts[domain.BucketLE15m]),
			uint32(c.BucketCounts[domain.BucketLE30m]),
			uint32(c.BucketCounts[domain.BucketLE60m]),
			tokens,
		)
		if err != nil {
			return fmt.Errorf("append classification: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest rebuilds the most recent snapshot of a cohort. Returns ErrNotFound if none.
func (s *ClassificationHistoryStore) GetLatest(ctx context.Context, cohortID string) (*domain.ClassificationSnapshot, error) {
	query := `
		SELECT ` + classificationColumns + `
		FROM wallet_classifications
		WHERE cohort_id = ?
		  AND computed_at = (SELECT max(computed_at) FROM wallet_classifications WHERE cohort_id = ?)
		ORDER BY wallet_address ASC
	`

	rows, err := s.conn.Query(ctx, query, cohortID, cohortID)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	defer rows.Close()

	var snap *domain.ClassificationSnapshot
	for rows.Next() {
		row, err := scanClassificationRow(rows)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			snap = &domain.ClassificationSnapshot{
				CohortID:        row.cohortID,
				Status:          domain.SnapshotStatus(row.status),
				TrackedTokens:   int(row.trackedTokens),
				StaleTokens:     row.staleTokens,
				ComputedAt:      row.computedAt,
				Classifications: []domain.WalletClassification{},
			}
			if len(snap.StaleTokens) == 0 {
				snap.StaleTokens = nil
			}
		}
		if row.wallet == "" {
			continue
		}
		snap.Classifications = append(snap.Classifications, row.classification())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if snap == nil {
		return nil, storage.ErrNotFound
	}

	domain.SortClassifications(snap.Classifications)
	return snap, nil
}

// GetWalletHistory returns a wallet's rows across snapshots, ordered by computed_at ASC.
func (s *ClassificationHistoryStore) GetWalletHistory(ctx context.Context, walletAddress string) ([]*storage.ClassificationRecord, error) {
	if walletAddress == "" {
		return nil, nil
	}

	query := `
		SELECT ` + classificationColumns + `
		FROM wallet_classifications
		WHERE wallet_address = ?
		ORDER BY computed_at ASC, cohort_id ASC
	`

	rows, err := s.conn.Query(ctx, query, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("query wallet history: %w", err)
	}
	defer rows.Close()

	var result []*storage.ClassificationRecord
	for rows.Next() {
		row, err := scanClassificationRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, &storage.ClassificationRecord{
			CohortID:       row.cohortID,
			ComputedAt:     row.computedAt,
			Status:         domain.SnapshotStatus(row.status),
			Classification: row.classification(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (s *ClassificationHistoryStore) exists(ctx context.Context, cohortID string, computedAt int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		"SELECT count() FROM wallet_classifications WHERE cohort_id = ? AND computed_at = ?",
		cohortID, computedAt,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type classificationRow struct {
	cohortID      string
	computedAt    int64
	status        string
	trackedTokens uint32
	staleTokens   []string
	wallet        string
	tier          string
	totalWins     uint32
	avgDelayMs    int64
	le5m          uint32
	le15m         uint32
	le30m         uint32
	le60m         uint32
	tokens        []string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClassificationRow(rows rowScanner) (*classificationRow, error) {
	var r classificationRow
	err := rows.Scan(
		&r.cohortID, &r.computedAt, &r.status, &r.trackedTokens, &r.staleTokens,
		&r.wallet, &r.tier, &r.totalWins, &r.avgDelayMs,
		&r.le5m, &r.le15m, &r.le30m, &r.le60m, &r.tokens,
	)
	if err != nil {
		return nil, fmt.Errorf("scan classification row: %w", err)
	}
	return &r, nil
}

func (r *classificationRow) classification() domain.WalletClassification {
	counts := make(map[domain.TimingBucket]int)
	for bucket, n := range map[domain.TimingBucket]uint32{
		domain.BucketLE5m:  r.le5m,
		domain.BucketLE15m: r.le15m,
		domain.BucketLE30m: r.le30m,
		domain.BucketLE60m: r.le60m,
	} {
		if n > 0 {
			counts[bucket] = int(n)
		}
	}
	tokens := r.tokens
	if tokens == nil {
		tokens = []string{}
	}
	return domain.WalletClassification{
		WalletAddress:   r.wallet,
		TotalWins:       int(r.totalWins),
		Tier:            domain.Tier(r.tier),
		AvgEntryDelayMs: r.avgDelayMs,
		BucketCounts:    counts,
		Tokens:          tokens,
	}
}

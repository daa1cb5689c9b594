package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

type snapshotKey struct {
	CohortID   string
	ComputedAt int64
}

// ClassificationHistoryStore is an in-memory implementation of storage.ClassificationHistoryStore.
type ClassificationHistoryStore struct {
	mu    sync.RWMutex
	snaps map[snapshotKey]*domain.ClassificationSnapshot
}

// NewClassificationHistoryStore creates a new in-memory classification history store.
func NewClassificationHistoryStore() *ClassificationHistoryStore {
	return &ClassificationHistoryStore{
		snaps: make(map[snapshotKey]*domain.ClassificationSnapshot),
	}
}

// InsertSnapshot appends a snapshot. Returns ErrDuplicateKey if (cohort_id, computed_at) exists.
func (s *ClassificationHistoryStore) InsertSnapshot(_ context.Context, snap *domain.ClassificationSnapshot) error {
	if snap == nil || snap.CohortID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey{CohortID: snap.CohortID, ComputedAt: snap.ComputedAt}
	if _, exists := s.snaps[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.snaps[key] = snap.Clone()
	return nil
}

// GetLatest returns the most recent snapshot of a cohort. Returns ErrNotFound if none.
func (s *ClassificationHistoryStore) GetLatest(_ context.Context, cohortID string) (*domain.ClassificationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ClassificationSnapshot
	for key, snap := range s.snaps {
		if key.CohortID == cohortID && (latest == nil || snap.ComputedAt > latest.ComputedAt) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest.Clone(), nil
}

// GetWalletHistory returns a wallet's rows across snapshots, ordered by computed_at ASC.
func (s *ClassificationHistoryStore) GetWalletHistory(_ context.Context, walletAddress string) ([]*storage.ClassificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.ClassificationRecord
	for _, snap := range s.snaps {
		for _, c := range snap.Classifications {
			if c.WalletAddress == walletAddress {
				result = append(result, &storage.ClassificationRecord{
					CohortID:       snap.CohortID,
					ComputedAt:     snap.ComputedAt,
					Status:         snap.Status,
					Classification: c.Clone(),
				})
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ComputedAt != result[j].ComputedAt {
			return result[i].ComputedAt < result[j].ComputedAt
		}
		return result[i].CohortID < result[j].CohortID
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ClassificationHistoryStore = (*ClassificationHistoryStore)(nil)

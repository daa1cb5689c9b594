package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.Position // follower -> token -> position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]map[string]*domain.Position),
	}
}

// Upsert writes an open position.
func (s *PositionStore) Upsert(_ context.Context, followerID string, p *domain.Position) error {
	if followerID == "" || p == nil || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, ok := s.data[followerID]
	if !ok {
		tokens = make(map[string]*domain.Position)
		s.data[followerID] = tokens
	}
	posCopy := *p
	tokens[p.TokenAddress] = &posCopy
	return nil
}

// Delete removes a closed position.
func (s *PositionStore) Delete(_ context.Context, followerID, tokenAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[followerID], tokenAddress)
	return nil
}

// List returns a follower's open positions ordered by opened_at ASC.
func (s *PositionStore) List(_ context.Context, followerID string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Position, 0, len(s.data[followerID]))
	for _, p := range s.data[followerID] {
		posCopy := *p
		result = append(result, &posCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedAt != result[j].OpenedAt {
			return result[i].OpenedAt < result[j].OpenedAt
		}
		return result[i].TokenAddress < result[j].TokenAddress
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PositionStore = (*PositionStore)(nil)

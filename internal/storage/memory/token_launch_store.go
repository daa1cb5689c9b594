package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// TokenLaunchStore is an in-memory implementation of storage.TokenLaunchStore.
type TokenLaunchStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenLaunch // keyed by address
}

// NewTokenLaunchStore creates a new in-memory launch store.
func NewTokenLaunchStore() *TokenLaunchStore {
	return &TokenLaunchStore{
		data: make(map[string]*domain.TokenLaunch),
	}
}

// Insert adds a new launch. Returns ErrDuplicateKey if address exists.
func (s *TokenLaunchStore) Insert(_ context.Context, l *domain.TokenLaunch) error {
	if l == nil || l.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[l.Address]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	launchCopy := *l
	s.data[l.Address] = &launchCopy
	return nil
}

// GetByAddress retrieves a launch by token address. Returns ErrNotFound if not exists.
func (s *TokenLaunchStore) GetByAddress(_ context.Context, address string) (*domain.TokenLaunch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	launchCopy := *l
	return &launchCopy, nil
}

// List retrieves all launches, ordered by launch_timestamp ASC, address ASC.
func (s *TokenLaunchStore) List(_ context.Context) ([]*domain.TokenLaunch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenLaunch, 0, len(s.data))
	for _, l := range s.data {
		launchCopy := *l
		result = append(result, &launchCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LaunchTimestamp != result[j].LaunchTimestamp {
			return result[i].LaunchTimestamp < result[j].LaunchTimestamp
		}
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TokenLaunchStore = (*TokenLaunchStore)(nil)

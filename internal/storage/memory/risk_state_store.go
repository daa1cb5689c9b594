package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// RiskStateStore is an in-memory implementation of storage.RiskStateStore.
type RiskStateStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.RiskState // follower -> trading day -> state
}

// NewRiskStateStore creates a new in-memory risk state store.
func NewRiskStateStore() *RiskStateStore {
	return &RiskStateStore{
		data: make(map[string]map[string]*domain.RiskState),
	}
}

// Upsert writes the state for its (follower, day).
func (s *RiskStateStore) Upsert(_ context.Context, st *domain.RiskState) error {
	if st == nil || st.FollowerID == "" || st.TradingDay == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.data[st.FollowerID]
	if !ok {
		days = make(map[string]*domain.RiskState)
		s.data[st.FollowerID] = days
	}
	stateCopy := *st
	days[st.TradingDay] = &stateCopy
	return nil
}

// Get retrieves the state for a (follower, day). Returns ErrNotFound if not exists.
func (s *RiskStateStore) Get(_ context.Context, followerID, tradingDay string) (*domain.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[followerID][tradingDay]
	if !ok {
		return nil, storage.ErrNotFound
	}
	stateCopy := *st
	return &stateCopy, nil
}

// GetLatest retrieves the most recent trading day's state. Returns ErrNotFound if not exists.
func (s *RiskStateStore) GetLatest(_ context.Context, followerID string) (*domain.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := s.data[followerID]
	if len(days) == 0 {
		return nil, storage.ErrNotFound
	}

	keys := make([]string, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Strings(keys)

	stateCopy := *days[keys[len(keys)-1]]
	return &stateCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.RiskStateStore = (*RiskStateStore)(nil)

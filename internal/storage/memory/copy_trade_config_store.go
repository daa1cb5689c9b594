package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// CopyTradeConfigStore is an in-memory implementation of storage.CopyTradeConfigStore.
type CopyTradeConfigStore struct {
	mu       sync.RWMutex
	versions map[string][]*domain.CopyTradeConfig // session_id -> versions, index = version-1
}

// NewCopyTradeConfigStore creates a new in-memory config store.
func NewCopyTradeConfigStore() *CopyTradeConfigStore {
	return &CopyTradeConfigStore{
		versions: make(map[string][]*domain.CopyTradeConfig),
	}
}

// Save stores cfg as the next version of its session.
func (s *CopyTradeConfigStore) Save(_ context.Context, cfg *domain.CopyTradeConfig) (*domain.CopyTradeConfig, error) {
	if cfg == nil || cfg.SessionID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneConfig(cfg)
	stored.Version = len(s.versions[cfg.SessionID]) + 1
	s.versions[cfg.SessionID] = append(s.versions[cfg.SessionID], stored)

	return cloneConfig(stored), nil
}

// GetLatest returns the active version of a session. Returns ErrNotFound if not exists.
func (s *CopyTradeConfigStore) GetLatest(_ context.Context, sessionID string) (*domain.CopyTradeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[sessionID]
	if len(vs) == 0 {
		return nil, storage.ErrNotFound
	}
	return cloneConfig(vs[len(vs)-1]), nil
}

// GetVersion returns a specific version. Returns ErrNotFound if not exists.
func (s *CopyTradeConfigStore) GetVersion(_ context.Context, sessionID string, version int) (*domain.CopyTradeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[sessionID]
	if version < 1 || version > len(vs) {
		return nil, storage.ErrNotFound
	}
	return cloneConfig(vs[version-1]), nil
}

// ListLatest returns the active version of every session, ordered by session_id ASC.
func (s *CopyTradeConfigStore) ListLatest(_ context.Context) ([]*domain.CopyTradeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CopyTradeConfig, 0, len(s.versions))
	for _, vs := range s.versions {
		result = append(result, cloneConfig(vs[len(vs)-1]))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SessionID < result[j].SessionID
	})
	return result, nil
}

// cloneConfig copies a config including its pointer fields.
func cloneConfig(c *domain.CopyTradeConfig) *domain.CopyTradeConfig {
	out := *c
	out.Schedule.EndDate = clonePtr(c.Schedule.EndDate)
	out.Security.ReserveWalletAddress = clonePtr(c.Security.ReserveWalletAddress)
	out.Security.TradingWalletAddress = clonePtr(c.Security.TradingWalletAddress)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Verify interface compliance at compile time.
var _ storage.CopyTradeConfigStore = (*CopyTradeConfigStore)(nil)

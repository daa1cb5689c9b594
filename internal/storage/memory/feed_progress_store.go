package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/storage"
)

// FeedProgressStore is an in-memory implementation of storage.FeedProgressStore.
type FeedProgressStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.FeedProgress
	stale   map[string]storage.StaleToken
}

// NewFeedProgressStore creates a new in-memory feed progress store.
func NewFeedProgressStore() *FeedProgressStore {
	return &FeedProgressStore{
		cursors: make(map[string]storage.FeedProgress),
		stale:   make(map[string]storage.StaleToken),
	}
}

// GetCursor returns the last committed cursor for a feed.
func (s *FeedProgressStore) GetCursor(_ context.Context, feed string) (*storage.FeedProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.cursors[feed]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// SetCursor saves the last committed cursor for a feed.
func (s *FeedProgressStore) SetCursor(_ context.Context, progress *storage.FeedProgress) error {
	if progress == nil || progress.Feed == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[progress.Feed] = *progress
	return nil
}

// MarkStale records that a token's data has a gap.
func (s *FeedProgressStore) MarkStale(_ context.Context, token *storage.StaleToken) error {
	if token == nil || token.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stale[token.TokenAddress]; !exists {
		s.stale[token.TokenAddress] = *token
	}
	return nil
}

// ClearStale removes the stale mark for a token.
func (s *FeedProgressStore) ClearStale(_ context.Context, tokenAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stale, tokenAddress)
	return nil
}

// ListStale returns all stale tokens ordered by token address.
func (s *FeedProgressStore) ListStale(_ context.Context) ([]*storage.StaleToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.StaleToken, 0, len(s.stale))
	for _, st := range s.stale {
		stCopy := st
		result = append(result, &stCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TokenAddress < result[j].TokenAddress
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

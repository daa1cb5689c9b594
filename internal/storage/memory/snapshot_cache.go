package memory

import (
	"context"
	"sync"
	"time"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

type cacheEntry struct {
	snap      *domain.ClassificationSnapshot
	expiresAt time.Time // zero means no expiry
}

// SnapshotCache is an in-memory implementation of storage.SnapshotCache.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	latest  string
	now     func() time.Time
}

// NewSnapshotCache creates a new in-memory snapshot cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns a cached snapshot. Returns ErrNotFound on miss or expiry.
func (c *SnapshotCache) Get(_ context.Context, cohortID string) (*domain.ClassificationSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.getLocked(cohortID)
}

// Set caches a snapshot under its cohort id and marks it latest.
func (c *SnapshotCache) Set(_ context.Context, snap *domain.ClassificationSnapshot, ttl time.Duration) error {
	if snap == nil || snap.CohortID == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{snap: snap.Clone()}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[snap.CohortID] = entry
	c.latest = snap.CohortID
	return nil
}

// GetLatest returns the most recently cached snapshot.
func (c *SnapshotCache) GetLatest(_ context.Context) (*domain.ClassificationSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latest == "" {
		return nil, storage.ErrNotFound
	}
	return c.getLocked(c.latest)
}

func (c *SnapshotCache) getLocked(cohortID string) (*domain.ClassificationSnapshot, error) {
	entry, ok := c.entries[cohortID]
	if !ok || (!entry.expiresAt.IsZero() && c.now().After(entry.expiresAt)) {
		return nil, storage.ErrNotFound
	}
	return entry.snap.Clone(), nil
}

// Verify interface compliance at compile time.
var _ storage.SnapshotCache = (*SnapshotCache)(nil)

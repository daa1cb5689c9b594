// Package rediscache serves classification snapshots from Redis so readers
// never wait on an analysis run.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/ranking"
	"solana-copytrade-lab/internal/storage"
)

const (
	keyPrefix = "classification:"
	latestKey = keyPrefix + "latest"
)

// SnapshotCache implements storage.SnapshotCache on Redis.
// Values are the canonical snapshot encoding from ranking.Encode.
type SnapshotCache struct {
	rdb *redis.Client
}

// Options configures the Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient opens and pings a Redis client.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// NewSnapshotCache wraps an existing client.
func NewSnapshotCache(rdb *redis.Client) *SnapshotCache {
	return &SnapshotCache{rdb: rdb}
}

// Get returns a cached snapshot. Returns ErrNotFound on miss.
func (c *SnapshotCache) Get(ctx context.Context, cohortID string) (*domain.ClassificationSnapshot, error) {
	return c.load(ctx, keyPrefix+cohortID)
}

// Set writes the snapshot under its cohort key and the latest alias in one transaction.
// A non-positive ttl keeps the entries until overwritten.
func (c *SnapshotCache) Set(ctx context.Context, snap *domain.ClassificationSnapshot, ttl time.Duration) error {
	if snap == nil || snap.CohortID == "" {
		return storage.ErrInvalidInput
	}
	if ttl < 0 {
		ttl = 0
	}

	data, err := ranking.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+snap.CohortID, data, ttl)
		pipe.Set(ctx, latestKey, data, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recently cached snapshot. Returns ErrNotFound on miss.
func (c *SnapshotCache) GetLatest(ctx context.Context) (*domain.ClassificationSnapshot, error) {
	return c.load(ctx, latestKey)
}

func (c *SnapshotCache) load(ctx context.Context, key string) (*domain.ClassificationSnapshot, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}

	snap, err := ranking.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Verify interface compliance at compile time.
var _ storage.SnapshotCache = (*SnapshotCache)(nil)

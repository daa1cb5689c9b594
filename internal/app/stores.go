// Package app wires configuration into stores, feeds and services for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/config"
	"solana-copytrade-lab/internal/storage"
	chstore "solana-copytrade-lab/internal/storage/clickhouse"
	"solana-copytrade-lab/internal/storage/memory"
	"solana-copytrade-lab/internal/storage/migrations"
	pgstore "solana-copytrade-lab/internal/storage/postgres"
	"solana-copytrade-lab/internal/storage/rediscache"
)

// Stores holds every storage implementation. History and Cache are nil when
// ClickHouse or Redis is not configured.
type Stores struct {
	Launches  storage.TokenLaunchStore
	Buys      storage.BuyEventStore
	Results   storage.WalletTokenResultStore
	Progress  storage.FeedProgressStore
	Configs   storage.CopyTradeConfigStore
	Orders    storage.MirroredOrderStore
	Risk      storage.RiskStateStore
	Positions storage.PositionStore
	History   storage.ClassificationHistoryStore
	Cache     storage.SnapshotCache
}

// MemoryStores returns in-memory stores for every concern.
func MemoryStores() *Stores {
	return &Stores{
		Launches:  memory.NewTokenLaunchStore(),
		Buys:      memory.NewBuyEventStore(),
		Results:   memory.NewWalletTokenResultStore(),
		Progress:  memory.NewFeedProgressStore(),
		Configs:   memory.NewCopyTradeConfigStore(),
		Orders:    memory.NewMirroredOrderStore(),
		Risk:      memory.NewRiskStateStore(),
		Positions: memory.NewPositionStore(),
		History:   memory.NewClassificationHistoryStore(),
		Cache:     memory.NewSnapshotCache(),
	}
}

// OpenStores connects the configured backends. The returned cleanup closes
// every connection that was opened.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger logrus.FieldLogger) (*Stores, func(), error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return MemoryStores(), func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	closers = append(closers, pool.Close)

	if cfg.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	stores := &Stores{
		Launches:  pgstore.NewTokenLaunchStore(pool),
		Buys:      pgstore.NewBuyEventStore(pool),
		Results:   pgstore.NewWalletTokenResultStore(pool),
		Progress:  pgstore.NewFeedProgressStore(pool),
		Configs:   pgstore.NewCopyTradeConfigStore(pool),
		Orders:    pgstore.NewMirroredOrderStore(pool),
		Risk:      pgstore.NewRiskStateStore(pool),
		Positions: pgstore.NewPositionStore(pool),
	}

	// ClickHouse
	if cfg.ClickhouseDSN != "" {
		var conn *chstore.Conn
		if cfg.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.History = chstore.NewClassificationHistoryStore(conn)
	}

	// Redis
	if cfg.RedisAddr != "" {
		rdb, err := rediscache.NewClient(ctx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { rdb.Close() })
		stores.Cache = rediscache.NewSnapshotCache(rdb)
	}

	logger.WithFields(logrus.Fields{
		"clickhouse": stores.History != nil,
		"redis":      stores.Cache != nil,
	}).Info("storage connected")
	return stores, cleanup, nil
}

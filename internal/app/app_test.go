package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filippo.io/edwards25519"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/config"
	"solana-copytrade-lab/internal/configstore"
	"solana-copytrade-lab/internal/solana"
)

func TestSeedSessions(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	stores := MemoryStores()
	svc := configstore.NewServiceWithClock(stores.Configs, func() time.Time {
		return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	}, logger)

	wallet, err := solana.EncodeAddress(edwards25519.NewGeneratorPoint().Bytes())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sessions.yaml")
	write := func(budget string) {
		content := `
- session_id: alice
  target_wallet: ` + wallet + `
  budget:
    amount: ` + budget + `
  schedule:
    start_date: "2026-10-01"
  risk:
    max_trade_size: 2
    small_trade_multiplier: 1
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	write("50")
	n, err := SeedSessions(ctx, path, svc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Unchanged file: no new version.
	n, err = SeedSessions(ctx, path, svc)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	write("75")
	n, err = SeedSessions(ctx, path, svc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cfg, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Version)

	n, err = SeedSessions(ctx, "", svc)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedSessions_InvalidSession(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stores := MemoryStores()
	svc := configstore.NewService(stores.Configs, logger)

	path := filepath.Join(t.TempDir(), "sessions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- session_id: bob\n  target_wallet: nope\n"), 0o600))

	_, err := SeedSessions(context.Background(), path, svc)
	require.Error(t, err)
	assert.True(t, configstore.IsConfigurationError(err))
}

func TestOpenStores_Memory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stores, cleanup, err := OpenStores(context.Background(), config.StorageConfig{UseMemory: true}, logger)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, stores.Launches)
	assert.NotNil(t, stores.Orders)
	assert.NotNil(t, stores.History)
	assert.NotNil(t, stores.Cache)
}

func TestNewConsumer_NoFiles(t *testing.T) {
	logger, _ := test.NewNullLogger()
	consumer, err := NewConsumer(config.FeedConfig{}, MemoryStores(), logger)
	require.NoError(t, err)
	assert.Nil(t, consumer)
}

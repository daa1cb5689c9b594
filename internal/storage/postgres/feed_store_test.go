package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

func TestTokenLaunchStore_InsertGetList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenLaunchStore(pool)

	launch := &domain.TokenLaunch{
		Address:         "MintA",
		Symbol:          "AAA",
		LaunchTimestamp: 1700000000000,
		PeakMarketCap:   1234.5,
		Cursor:          7,
	}
	require.NoError(t, store.Insert(ctx, launch))
	require.NoError(t, store.Insert(ctx, &domain.TokenLaunch{Address: "MintB", LaunchTimestamp: 1600000000000}))

	got, err := store.GetByAddress(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, launch, got)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "MintB", all[0].Address)

	assert.ErrorIs(t, store.Insert(ctx, launch), storage.ErrDuplicateKey)
	_, err = store.GetByAddress(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBuyEventStore_InsertBulkAndOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBuyEventStore(pool)

	buys := []*domain.BuyEvent{
		{WalletAddress: "W2", TokenAddress: "MintA", Timestamp: 2000, SolAmount: 1, TxSignature: "sig2", Cursor: 2},
		{WalletAddress: "W1", TokenAddress: "MintA", Timestamp: 1000, SolAmount: 2, TxSignature: "sig1", Cursor: 1},
	}
	require.NoError(t, store.InsertBulk(ctx, buys))

	got, err := store.GetByToken(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "W1", got[0].WalletAddress)
	assert.InDelta(t, 2.0, got[0].SolAmount, 1e-9)

	// duplicate inside a batch rolls back the whole batch
	err = store.InsertBulk(ctx, []*domain.BuyEvent{
		{WalletAddress: "W3", TokenAddress: "MintA", Timestamp: 3000, TxSignature: "sig3"},
		buys[0],
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err = store.GetByToken(ctx, "MintA")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWalletTokenResultStore_Replace(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletTokenResultStore(pool)

	results := []*domain.WalletTokenResult{
		{WalletAddress: "W1", TokenAddress: "MintA", Bucket: domain.BucketLE5m, Rank: 1, SolInvested: 1, EntryDelayMs: 1000, BuyTimestamp: 1000},
		{WalletAddress: "W2", TokenAddress: "MintA", Bucket: domain.BucketLE30m, Rank: 2, SolInvested: 3, EntryDelayMs: 20 * 60000, BuyTimestamp: 2000},
	}
	require.NoError(t, store.ReplaceForToken(ctx, "MintA", results))
	require.NoError(t, store.ReplaceForToken(ctx, "MintB", []*domain.WalletTokenResult{
		{WalletAddress: "W1", TokenAddress: "MintB", Bucket: domain.BucketLE15m, Rank: 1},
	}))

	got, err := store.GetByTokens(ctx, []string{"MintA", "MintB"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, domain.BucketLE5m, got[0].Bucket)

	require.NoError(t, store.ReplaceForToken(ctx, "MintA", results[:1]))
	byWallet, err := store.GetByWallet(ctx, "W2")
	require.NoError(t, err)
	assert.Empty(t, byWallet)

	byWallet, err = store.GetByWallet(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, byWallet, 2)
}

func TestFeedProgressStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeedProgressStore(pool)

	_, err := store.GetCursor(ctx, "buys")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetCursor(ctx, &storage.FeedProgress{Feed: "buys", Cursor: 10, UpdatedAt: 1}))
	require.NoError(t, store.SetCursor(ctx, &storage.FeedProgress{Feed: "buys", Cursor: 20, UpdatedAt: 2}))

	p, err := store.GetCursor(ctx, "buys")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.Cursor)

	require.NoError(t, store.MarkStale(ctx, &storage.StaleToken{TokenAddress: "MintB", Reason: "first", MarkedAt: 1}))
	require.NoError(t, store.MarkStale(ctx, &storage.StaleToken{TokenAddress: "MintB", Reason: "second", MarkedAt: 2}))
	require.NoError(t, store.MarkStale(ctx, &storage.StaleToken{TokenAddress: "MintA", Reason: "gap", MarkedAt: 3}))

	stale, err := store.ListStale(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "MintA", stale[0].TokenAddress)
	assert.Equal(t, "first", stale[1].Reason)

	require.NoError(t, store.ClearStale(ctx, "MintA"))
	stale, err = store.ListStale(ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

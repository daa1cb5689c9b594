package memory

import (
	"context"
	"errors"
	"testing"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

func TestTokenLaunchStore_InsertAndList(t *testing.T) {
	store := NewTokenLaunchStore()
	ctx := context.Background()

	launches := []*domain.TokenLaunch{
		{Address: "mintB", Symbol: "BBB", LaunchTimestamp: 2000},
		{Address: "mintA", Symbol: "AAA", LaunchTimestamp: 2000},
		{Address: "mintC", Symbol: "CCC", LaunchTimestamp: 1000},
	}
	for _, l := range launches {
		if err := store.Insert(ctx, l); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"mintC", "mintA", "mintB"}
	for i, l := range got {
		if l.Address != want[i] {
			t.Errorf("position %d: got %s, want %s", i, l.Address, want[i])
		}
	}

	if err := store.Insert(ctx, launches[0]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByAddress(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenLaunchStore_ReturnsCopies(t *testing.T) {
	store := NewTokenLaunchStore()
	ctx := context.Background()

	l := &domain.TokenLaunch{Address: "mintA", Symbol: "AAA"}
	if err := store.Insert(ctx, l); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	l.Symbol = "mutated"

	got, _ := store.GetByAddress(ctx, "mintA")
	if got.Symbol != "AAA" {
		t.Errorf("stored launch mutated through caller pointer: %s", got.Symbol)
	}
}

func TestBuyEventStore_InsertBulkAtomic(t *testing.T) {
	store := NewBuyEventStore()
	ctx := context.Background()

	first := &domain.BuyEvent{WalletAddress: "w1", TokenAddress: "mintA", TxSignature: "sig1", Timestamp: 10}
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	batch := []*domain.BuyEvent{
		{WalletAddress: "w2", TokenAddress: "mintA", TxSignature: "sig2", Timestamp: 5},
		first,
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByToken(ctx, "mintA")
	if len(got) != 1 {
		t.Fatalf("batch should be rejected entirely, got %d buys", len(got))
	}

	if err := store.InsertBulk(ctx, batch[:1]); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	got, _ = store.GetByToken(ctx, "mintA")
	if len(got) != 2 || got[0].WalletAddress != "w2" {
		t.Errorf("expected buys ordered by timestamp, got %+v", got)
	}
}

func TestBuyEventStore_InvalidInput(t *testing.T) {
	store := NewBuyEventStore()
	err := store.Insert(context.Background(), &domain.BuyEvent{TokenAddress: "mintA"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWalletTokenResultStore_Replace(t *testing.T) {
	store := NewWalletTokenResultStore()
	ctx := context.Background()

	first := []*domain.WalletTokenResult{
		{WalletAddress: "w1", TokenAddress: "mintA", Bucket: domain.BucketLE5m, Rank: 1},
		{WalletAddress: "w2", TokenAddress: "mintA", Bucket: domain.BucketLE15m, Rank: 2},
	}
	if err := store.ReplaceForToken(ctx, "mintA", first); err != nil {
		t.Fatalf("ReplaceForToken failed: %v", err)
	}
	if err := store.ReplaceForToken(ctx, "mintB", []*domain.WalletTokenResult{
		{WalletAddress: "w1", TokenAddress: "mintB", Bucket: domain.BucketLE30m, Rank: 1},
	}); err != nil {
		t.Fatalf("ReplaceForToken failed: %v", err)
	}

	got, _ := store.GetByTokens(ctx, []string{"mintA", "mintB"})
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}

	// replacing drops w2
	if err := store.ReplaceForToken(ctx, "mintA", first[:1]); err != nil {
		t.Fatalf("ReplaceForToken failed: %v", err)
	}
	got, _ = store.GetByWallet(ctx, "w2")
	if len(got) != 0 {
		t.Errorf("expected w2 results to be replaced, got %d", len(got))
	}
	got, _ = store.GetByWallet(ctx, "w1")
	if len(got) != 2 || got[0].TokenAddress != "mintA" {
		t.Errorf("unexpected w1 results: %+v", got)
	}

	err := store.ReplaceForToken(ctx, "mintA", []*domain.WalletTokenResult{
		{WalletAddress: "w1", TokenAddress: "mintA"},
		{WalletAddress: "w1", TokenAddress: "mintA"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	err = store.ReplaceForToken(ctx, "mintA", []*domain.WalletTokenResult{{WalletAddress: "w1", TokenAddress: "mintZ"}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFeedProgressStore(t *testing.T) {
	store := NewFeedProgressStore()
	ctx := context.Background()

	if _, err := store.GetCursor(ctx, "buys"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetCursor(ctx, &storage.FeedProgress{Feed: "buys", Cursor: 42}); err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	p, err := store.GetCursor(ctx, "buys")
	if err != nil || p.Cursor != 42 {
		t.Fatalf("GetCursor = %+v, %v", p, err)
	}

	if err := store.MarkStale(ctx, &storage.StaleToken{TokenAddress: "mintB", Reason: "gap 1"}); err != nil {
		t.Fatalf("MarkStale failed: %v", err)
	}
	_ = store.MarkStale(ctx, &storage.StaleToken{TokenAddress: "mintB", Reason: "gap 2"})
	_ = store.MarkStale(ctx, &storage.StaleToken{TokenAddress: "mintA", Reason: "gap 3"})

	stale, _ := store.ListStale(ctx)
	if len(stale) != 2 || stale[0].TokenAddress != "mintA" || stale[1].Reason != "gap 1" {
		t.Errorf("unexpected stale list: %+v", stale)
	}

	_ = store.ClearStale(ctx, "mintA")
	stale, _ = store.ListStale(ctx)
	if len(stale) != 1 {
		t.Errorf("expected 1 stale token after clear, got %d", len(stale))
	}
}

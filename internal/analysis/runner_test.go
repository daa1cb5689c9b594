package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/notify"
	"solana-copytrade-lab/internal/ranking"
	"solana-copytrade-lab/internal/storage"
	"solana-copytrade-lab/internal/storage/memory"
)

const minute = int64(60_000)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type fixture struct {
	launches *memory.TokenLaunchStore
	buys     *memory.BuyEventStore
	results  *memory.WalletTokenResultStore
	progress *memory.FeedProgressStore
	history  *memory.ClassificationHistoryStore
	cache    *memory.SnapshotCache
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		launches: memory.NewTokenLaunchStore(),
		buys:     memory.NewBuyEventStore(),
		results:  memory.NewWalletTokenResultStore(),
		progress: memory.NewFeedProgressStore(),
		history:  memory.NewClassificationHistoryStore(),
		cache:    memory.NewSnapshotCache(),
		notifier: &recordingNotifier{},
		clock:    time.UnixMilli(1_800_000_000_000),
	}
}

func (f *fixture) runner() *Runner {
	logger, _ := test.NewNullLogger()
	return New(Options{
		LaunchStore:   f.launches,
		BuyStore:      f.buys,
		ResultStore:   f.results,
		ProgressStore: f.progress,
		HistoryStore:  f.history,
		Cache:         f.cache,
		Thresholds:    ranking.DefaultThresholds(),
		Notifier:      f.notifier,
		Concurrency:   2,
		Clock:         func() time.Time { return f.clock },
		Logger:        logger,
	})
}

func (f *fixture) launch(t *testing.T, token string, ts int64) {
	t.Helper()
	require.NoError(t, f.launches.Insert(context.Background(), &domain.TokenLaunch{
		Address: token, Symbol: token, LaunchTimestamp: ts,
	}))
}

func (f *fixture) buy(t *testing.T, wallet, token string, ts int64) {
	t.Helper()
	require.NoError(t, f.buys.Insert(context.Background(), &domain.BuyEvent{
		WalletAddress: wallet,
		TokenAddress:  token,
		Timestamp:     ts,
		SolAmount:     1,
		TxSignature:   "sig-" + wallet + "-" + token,
	}))
}

// seed builds three launches at t0 and five wallets with distinct outcomes.
func (f *fixture) seed(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	for _, tok := range []string{"tokA", "tokB", "tokC"} {
		f.launch(t, tok, t0)
		f.buy(t, "legend", tok, t0+2*minute)
	}
	f.buy(t, "consistent", "tokA", t0+10*minute)
	f.buy(t, "consistent", "tokB", t0+20*minute)
	f.buy(t, "lucky", "tokC", t0+45*minute)
	f.buy(t, "early-bird", "tokA", t0-minute) // pre-launch, invalid
	f.buy(t, "late", "tokB", t0+120*minute)   // outside every window
}

func TestRunner_NotYetAnalyzed(t *testing.T) {
	f := newFixture(t)
	snap := f.runner().Snapshot()
	assert.Equal(t, domain.SnapshotNotYetAnalyzed, snap.Status)
	assert.Empty(t, snap.Classifications)
}

func TestRunner_Run(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	r := f.runner()
	ctx := context.Background()

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TokensProcessed)
	assert.Equal(t, 6, result.ResultsWritten)
	assert.Equal(t, 1, result.InvalidEvents)
	assert.Empty(t, result.Errors)

	snap := result.Snapshot
	assert.Equal(t, domain.SnapshotComplete, snap.Status)
	assert.Equal(t, 3, snap.TrackedTokens)
	require.Len(t, snap.Classifications, 3)
	assert.Equal(t, "legend", snap.Classifications[0].WalletAddress)
	assert.Equal(t, domain.TierLegend, snap.Classifications[0].Tier)
	assert.Equal(t, "consistent", snap.Classifications[1].WalletAddress)
	assert.Equal(t, domain.TierConsistent, snap.Classifications[1].Tier)
	assert.Equal(t, "lucky", snap.Classifications[2].WalletAddress)
	assert.Equal(t, 1, snap.Classifications[2].BucketCounts[domain.BucketLE60m])
	assert.Zero(t, snap.Classifications[2].BucketCounts[domain.BucketLE30m])

	// Readers see the new snapshot.
	assert.Equal(t, snap, r.Snapshot())

	// Results were persisted per token.
	stored, err := f.results.GetByWallet(ctx, "legend")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// Published to cache, history and the notifier.
	cached, err := f.cache.Get(ctx, snap.CohortID)
	require.NoError(t, err)
	assert.Equal(t, snap, cached)

	hist, err := f.history.GetLatest(ctx, snap.CohortID)
	require.NoError(t, err)
	assert.Equal(t, snap.ComputedAt, hist.ComputedAt)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventClassificationComplete, f.notifier.events[0].Type)
	assert.Equal(t, snap.CohortID, f.notifier.events[0].CohortID)
}

func TestRunner_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	r := f.runner()
	ctx := context.Background()

	first, err := r.Run(ctx)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	second, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot.CohortID, second.Snapshot.CohortID)
	assert.Equal(t, first.Snapshot.Classifications, second.Snapshot.Classifications)
	assert.NotEqual(t, first.Snapshot.ComputedAt, second.Snapshot.ComputedAt)
}

func TestRunner_EmptyIsNotPending(t *testing.T) {
	f := newFixture(t)
	f.launch(t, "tokA", 1_700_000_000_000)
	r := f.runner()

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotEmpty, result.Snapshot.Status)
	assert.Equal(t, domain.SnapshotEmpty, r.Snapshot().Status)
	assert.NotNil(t, r.Snapshot().Classifications)
}

func TestRunner_StaleTokens(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	require.NoError(t, f.progress.MarkStale(ctx, &storage.StaleToken{TokenAddress: "tokB", Reason: "gap"}))
	require.NoError(t, f.progress.MarkStale(ctx, &storage.StaleToken{TokenAddress: "untracked", Reason: "gap"}))

	result, err := f.runner().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotStale, result.Snapshot.Status)
	assert.Equal(t, []string{"tokB"}, result.Snapshot.StaleTokens)
	assert.Equal(t, "stale-tokens", f.notifier.events[0].Reason)
}

func TestRunner_Warm(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	result, err := f.runner().Run(ctx)
	require.NoError(t, err)

	// A restarted runner reads the cache.
	restarted := f.runner()
	require.NoError(t, restarted.Warm(ctx))
	assert.Equal(t, result.Snapshot, restarted.Snapshot())

	// Without a cache it falls back to history.
	f.cache = memory.NewSnapshotCache()
	fromHistory := f.runner()
	require.NoError(t, fromHistory.Warm(ctx))
	assert.Equal(t, result.Snapshot.CohortID, fromHistory.Snapshot().CohortID)
	assert.Equal(t, domain.SnapshotComplete, fromHistory.Snapshot().Status)
}

func TestRunner_Report(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	r := f.runner()
	ctx := context.Background()

	_, err := r.Run(ctx)
	require.NoError(t, err)

	report, err := r.Report(ctx)
	require.NoError(t, err)
	require.Len(t, report.Tokens, 3)
	assert.Equal(t, "tokA", report.Tokens[0].TokenAddress)
	assert.Equal(t, 2, report.Tokens[0].EarlyBuyers)
	assert.Equal(t, "legend", report.Tokens[0].FirstBuyer)
	assert.Equal(t, 1, report.Tiers[domain.TierLegend])

	history, err := r.WalletHistory(ctx, "legend")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunner_ScheduleRejectsBadSpec(t *testing.T) {
	f := newFixture(t)
	err := f.runner().Schedule(context.Background(), "not a spec")
	assert.Error(t, err)
}

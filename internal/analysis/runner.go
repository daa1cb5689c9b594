// Package analysis runs the early-buyer classification batch.
// It coordinates: launches → timing buckets per token → wallet ranking → publication.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/idhash"
	"solana-copytrade-lab/internal/notify"
	"solana-copytrade-lab/internal/observability"
	"solana-copytrade-lab/internal/ranking"
	"solana-copytrade-lab/internal/storage"
	"solana-copytrade-lab/internal/timing"
)

// Runner produces classification snapshots from stored feed data.
// Runs are serialized; readers use Snapshot and never wait on a run.
type Runner struct {
	// Stores
	launchStore   storage.TokenLaunchStore
	buyStore      storage.BuyEventStore
	resultStore   storage.WalletTokenResultStore
	progressStore storage.FeedProgressStore
	historyStore  storage.ClassificationHistoryStore
	cache         storage.SnapshotCache

	ranker      *ranking.Ranker
	notifier    notify.Notifier
	concurrency int
	cacheTTL    time.Duration
	now         func() time.Time
	logger      logrus.FieldLogger

	runMu sync.Mutex
}

// Options for creating Runner.
type Options struct {
	// Required stores
	LaunchStore storage.TokenLaunchStore
	BuyStore    storage.BuyEventStore
	ResultStore storage.WalletTokenResultStore

	// Optional stores
	ProgressStore storage.FeedProgressStore          // stale tokens
	HistoryStore  storage.ClassificationHistoryStore // snapshot history
	Cache         storage.SnapshotCache              // fast reads for other processes

	Thresholds  ranking.Thresholds
	Notifier    notify.Notifier
	Concurrency int           // Default: 8 tokens bucketed in parallel
	CacheTTL    time.Duration // 0 keeps cached snapshots until replaced
	Clock       func() time.Time
	Logger      logrus.FieldLogger
}

// New creates a new Runner.
func New(opts Options) *Runner {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}

	return &Runner{
		launchStore:   opts.LaunchStore,
		buyStore:      opts.BuyStore,
		resultStore:   opts.ResultStore,
		progressStore: opts.ProgressStore,
		historyStore:  opts.HistoryStore,
		cache:         opts.Cache,
		ranker:        ranking.NewRanker(opts.Thresholds),
		notifier:      notifier,
		concurrency:   concurrency,
		cacheTTL:      opts.CacheTTL,
		now:           now,
		logger:        logger.WithField("component", "analysis"),
	}
}

// RunResult contains results from one analysis run.
type RunResult struct {
	Snapshot        *domain.ClassificationSnapshot
	TokensProcessed int
	ResultsWritten  int
	InvalidEvents   int
	Duration        time.Duration
	Errors          []string // publication failures; the snapshot is still valid
}

// Run executes one full classification.
// Phases:
//  1. Load launches (the cohort)
//  2. Bucket each token's buys and replace its WalletTokenResults
//  3. Collect stale tokens
//  4. Rank wallets into a new snapshot
//  5. Publish to cache, history and notification sink
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := r.now()
	result := &RunResult{}

	// Phase 1
	launches, err := r.launchStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load launches) failed: %w", err)
	}
	tokens := make([]string, len(launches))
	for i, l := range launches {
		tokens[i] = l.Address
	}
	cohortID := idhash.ComputeCohortID(tokens)
	log := r.logger.WithFields(logrus.Fields{"cohort": cohortID, "tokens": len(launches)})
	log.Info("analysis started")

	// Phase 2
	results, invalid, err := r.bucketTokens(ctx, launches)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (bucketing) failed: %w", err)
	}
	result.TokensProcessed = len(launches)
	result.ResultsWritten = len(results)
	result.InvalidEvents = invalid
	observability.RecordInvalidEvents(invalid)

	// Phase 3
	stale, err := r.staleTokens(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (stale tokens) failed: %w", err)
	}

	// Phase 4
	snap := r.ranker.Run(cohortID, len(launches), results, stale, r.now().UnixMilli())
	result.Snapshot = snap

	// Phase 5
	result.Errors = r.publish(ctx, snap)

	result.Duration = r.now().Sub(start)
	tiers := make(map[string]int)
	for _, c := range snap.Classifications {
		tiers[string(c.Tier)]++
	}
	observability.RecordAnalysisRun(string(snap.Status), result.Duration.Seconds(), tiers, r.now().Unix())

	log.WithFields(logrus.Fields{
		"status":   snap.Status,
		"wallets":  len(snap.Classifications),
		"invalid":  invalid,
		"stale":    len(stale),
		"duration": result.Duration,
	}).Info("analysis completed")

	return result, nil
}

// bucketTokens runs the bucketer per token with bounded parallelism.
func (r *Runner) bucketTokens(ctx context.Context, launches []*domain.TokenLaunch) ([]*domain.WalletTokenResult, int, error) {
	var (
		mu      sync.Mutex
		all     []*domain.WalletTokenResult
		invalid int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, launch := range launches {
		g.Go(func() error {
			buys, err := r.buyStore.GetByToken(gctx, launch.Address)
			if err != nil {
				return fmt.Errorf("load buys for %s: %w", launch.Address, err)
			}

			results, errs := timing.BuildResults(launch, buys)
			for _, e := range errs {
				r.logger.WithError(e).WithField("token", launch.Address).Debug("dropping invalid event")
			}

			if err := r.resultStore.ReplaceForToken(gctx, launch.Address, results); err != nil {
				return fmt.Errorf("store results for %s: %w", launch.Address, err)
			}

			mu.Lock()
			all = append(all, results...)
			invalid += len(errs)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	// Completion order varies; the ranker is order-independent but logs are not.
	sort.Slice(all, func(i, j int) bool {
		if all[i].TokenAddress != all[j].TokenAddress {
			return all[i].TokenAddress < all[j].TokenAddress
		}
		return all[i].Rank < all[j].Rank
	})
	return all, invalid, nil
}

func (r *Runner) staleTokens(ctx context.Context, tokens []string) ([]string, error) {
	if r.progressStore == nil {
		return nil, nil
	}
	marked, err := r.progressStore.ListStale(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tracked[t] = true
	}
	var stale []string
	for _, s := range marked {
		if tracked[s.TokenAddress] {
			stale = append(stale, s.TokenAddress)
		}
	}
	return stale, nil
}

// publish fans the snapshot out. Failures are reported, not fatal.
func (r *Runner) publish(ctx context.Context, snap *domain.ClassificationSnapshot) []string {
	var errs []string

	if r.cache != nil {
		if err := r.cache.Set(ctx, snap, r.cacheTTL); err != nil {
			errs = append(errs, fmt.Sprintf("cache: %v", err))
		}
	}
	if r.historyStore != nil {
		err := r.historyStore.InsertSnapshot(ctx, snap)
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			errs = append(errs, fmt.Sprintf("history: %v", err))
		}
	}
	for _, e := range errs {
		r.logger.WithField("cohort", snap.CohortID).Warn("snapshot publication failed: " + e)
	}

	ev := notify.NewEvent(notify.EventClassificationComplete, r.now())
	ev.CohortID = snap.CohortID
	ev.Attributes = map[string]string{
		"status":  string(snap.Status),
		"wallets": fmt.Sprint(len(snap.Classifications)),
	}
	if len(snap.StaleTokens) > 0 {
		ev.Reason = "stale-tokens"
	}
	r.notifier.Notify(ev)

	return errs
}

// Snapshot returns the latest snapshot without waiting on a running analysis.
// Before the first run it reports NOT_YET_ANALYZED.
func (r *Runner) Snapshot() *domain.ClassificationSnapshot {
	return r.ranker.Snapshot()
}

// Warm restores the latest published snapshot after a restart.
// The cache is tried first, then history for the current cohort.
func (r *Runner) Warm(ctx context.Context) error {
	if r.cache != nil {
		snap, err := r.cache.GetLatest(ctx)
		if err == nil {
			r.ranker.Load(snap)
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.WithError(err).Warn("snapshot cache unavailable")
		}
	}

	if r.historyStore == nil {
		return nil
	}
	launches, err := r.launchStore.List(ctx)
	if err != nil {
		return fmt.Errorf("load launches: %w", err)
	}
	tokens := make([]string, len(launches))
	for i, l := range launches {
		tokens[i] = l.Address
	}
	snap, err := r.historyStore.GetLatest(ctx, idhash.ComputeCohortID(tokens))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot history: %w", err)
	}
	r.ranker.Load(snap)
	return nil
}

// Report builds the buyer/timing report from stored results.
func (r *Runner) Report(ctx context.Context) (*ranking.Report, error) {
	launches, err := r.launchStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load launches: %w", err)
	}
	tokens := make([]string, len(launches))
	for i, l := range launches {
		tokens[i] = l.Address
	}
	results, err := r.resultStore.GetByTokens(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return r.ranker.BuildReport(results), nil
}

// WalletHistory returns a wallet's classification across stored snapshots.
func (r *Runner) WalletHistory(ctx context.Context, wallet string) ([]*storage.ClassificationRecord, error) {
	if r.historyStore == nil {
		return nil, nil
	}
	return r.historyStore.GetWalletHistory(ctx, wallet)
}

// Schedule runs the analysis on a cron spec until ctx is cancelled.
// Overlapping triggers are skipped while a run is in progress.
func (r *Runner) Schedule(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	_, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Error("scheduled analysis failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid analysis schedule %q: %w", spec, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Package ranking aggregates early-buy results into tiered wallet classifications.
package ranking

import (
	"fmt"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
)

// Thresholds maps distinct early-win counts to tiers.
// A wallet needs at least Legend wins for LEGEND, Consistent for CONSISTENT and Lucky for LUCKY.
type Thresholds struct {
	Legend     int `yaml:"legend"`
	Consistent int `yaml:"consistent"`
	Lucky      int `yaml:"lucky"`
}

// DefaultThresholds returns the 3/2/1 tiering.
func DefaultThresholds() Thresholds {
	return Thresholds{Legend: 3, Consistent: 2, Lucky: 1}
}

// Validate checks thresholds are positive and strictly descending.
func (t Thresholds) Validate() error {
	if t.Lucky < 1 {
		return fmt.Errorf("lucky threshold must be >= 1, got %d", t.Lucky)
	}
	if t.Consistent <= t.Lucky {
		return fmt.Errorf("consistent threshold (%d) must exceed lucky (%d)", t.Consistent, t.Lucky)
	}
	if t.Legend <= t.Consistent {
		return fmt.Errorf("legend threshold (%d) must exceed consistent (%d)", t.Legend, t.Consistent)
	}
	return nil
}

// TierFor maps a win count to a tier. ok is false below the lucky threshold.
func (t Thresholds) TierFor(wins int) (tier domain.Tier, ok bool) {
	switch {
	case wins >= t.Legend:
		return domain.TierLegend, true
	case wins >= t.Consistent:
		return domain.TierConsistent, true
	case wins >= t.Lucky:
		return domain.TierLucky, true
	default:
		return "", false
	}
}

// Ranker computes classifications and keeps the latest snapshot for read-only queries.
type Ranker struct {
	thresholds Thresholds

	mu     sync.RWMutex
	latest *domain.ClassificationSnapshot
}

// NewRanker creates a ranker. Invalid thresholds fall back to the defaults.
func NewRanker(thresholds Thresholds) *Ranker {
	if thresholds.Validate() != nil {
		thresholds = DefaultThresholds()
	}
	return &Ranker{thresholds: thresholds}
}

// Thresholds returns the configured tier thresholds.
func (r *Ranker) Thresholds() Thresholds {
	return r.thresholds
}

// Rank groups results by wallet and returns classifications sorted by
// (tier DESC, total_wins DESC, avg_entry_delay ASC, wallet ASC).
// Duplicate results for the same (wallet, token) count once, keeping the earliest entry.
// Empty input yields an empty, non-nil slice.
func (r *Ranker) Rank(results []*domain.WalletTokenResult) []domain.WalletClassification {
	perWallet := make(map[string]map[string]*domain.WalletTokenResult)

	for _, res := range results {
		if res == nil || !res.Bucket.Qualifies() {
			continue
		}
		tokens, ok := perWallet[res.WalletAddress]
		if !ok {
			tokens = make(map[string]*domain.WalletTokenResult)
			perWallet[res.WalletAddress] = tokens
		}
		prev, ok := tokens[res.TokenAddress]
		if !ok || res.EntryDelayMs < prev.EntryDelayMs {
			tokens[res.TokenAddress] = res
		}
	}

	out := make([]domain.WalletClassification, 0, len(perWallet))
	for wallet, tokens := range perWallet {
		tier, ok := r.thresholds.TierFor(len(tokens))
		if !ok {
			continue
		}

		c := domain.WalletClassification{
			WalletAddress: wallet,
			TotalWins:     len(tokens),
			Tier:          tier,
			BucketCounts:  make(map[domain.TimingBucket]int, len(domain.Buckets)),
			Tokens:        make([]string, 0, len(tokens)),
		}

		var delaySum int64
		for token, res := range tokens {
			c.Tokens = append(c.Tokens, token)
			delaySum += res.EntryDelayMs
			addNested(c.BucketCounts, res.Bucket)
		}
		sort.Strings(c.Tokens)
		c.AvgEntryDelayMs = delaySum / int64(len(tokens))

		out = append(out, c)
	}

	domain.SortClassifications(out)
	return out
}

// Run ranks the cohort and stores the result as the latest snapshot.
// Stale tokens still contribute results but mark the snapshot STALE.
func (r *Ranker) Run(cohortID string, trackedTokens int, results []*domain.WalletTokenResult, staleTokens []string, computedAt int64) *domain.ClassificationSnapshot {
	snap := &domain.ClassificationSnapshot{
		CohortID:        cohortID,
		Classifications: r.Rank(results),
		TrackedTokens:   trackedTokens,
		ComputedAt:      computedAt,
	}

	if len(staleTokens) > 0 {
		snap.StaleTokens = append([]string(nil), staleTokens...)
		sort.Strings(snap.StaleTokens)
	}

	switch {
	case len(snap.StaleTokens) > 0:
		snap.Status = domain.SnapshotStale
	case len(snap.Classifications) == 0:
		snap.Status = domain.SnapshotEmpty
	default:
		snap.Status = domain.SnapshotComplete
	}

	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()

	return snap.Clone()
}

// Load installs a previously computed snapshot, e.g. from the cache at startup.
func (r *Ranker) Load(snap *domain.ClassificationSnapshot) {
	if snap == nil {
		return
	}
	r.mu.Lock()
	r.latest = snap.Clone()
	r.mu.Unlock()
}

// Snapshot returns a copy of the latest snapshot.
// Before the first run it returns a NOT_YET_ANALYZED snapshot, never nil.
func (r *Ranker) Snapshot() *domain.ClassificationSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return &domain.ClassificationSnapshot{
			Status:          domain.SnapshotNotYetAnalyzed,
			Classifications: []domain.WalletClassification{},
		}
	}
	return r.latest.Clone()
}

// addNested counts a bucket toward itself and every wider bucket.
func addNested(counts map[domain.TimingBucket]int, bucket domain.TimingBucket) {
	for _, b := range domain.Buckets {
		if b.Contains(bucket) {
			counts[b]++
		}
	}
}

package domain

import "sort"

// WalletTokenResult is a wallet's first qualifying buy of a token.
// Keyed by (wallet_address, token_address) in wallet_token_results.
type WalletTokenResult struct {
	WalletAddress string
	TokenAddress  string
	Bucket        TimingBucket
	Rank          int     // 1-based ordinal among the token's early buyers by timestamp
	SolInvested   float64 // SOL spent on the first qualifying buy
	EntryDelayMs  int64   // buy timestamp minus launch timestamp
	BuyTimestamp  int64   // ms
}

// Tier is the ranked classification of a wallet.
type Tier string

const (
	TierLegend     Tier = "LEGEND"
	TierConsistent Tier = "CONSISTENT"
	TierLucky      Tier = "LUCKY"
)

// Rank orders tiers; higher is better.
func (t Tier) Rank() int {
	switch t {
	case TierLegend:
		return 3
	case TierConsistent:
		return 2
	case TierLucky:
		return 1
	default:
		return 0
	}
}

// WalletClassification is one row of a classification snapshot.
type WalletClassification struct {
	WalletAddress   string               `json:"wallet_address"`
	TotalWins       int                  `json:"total_wins"`
	Tier            Tier                 `json:"tier"`
	AvgEntryDelayMs int64                `json:"avg_entry_delay_ms"`
	BucketCounts    map[TimingBucket]int `json:"bucket_counts"` // nested counts
	Tokens          []string             `json:"tokens"`        // sorted
}

// Clone returns a deep copy.
func (c WalletClassification) Clone() WalletClassification {
	out := c
	out.BucketCounts = make(map[TimingBucket]int, len(c.BucketCounts))
	for k, v := range c.BucketCounts {
		out.BucketCounts[k] = v
	}
	out.Tokens = append([]string(nil), c.Tokens...)
	return out
}

// SnapshotStatus distinguishes "no data" from "analysis pending".
type SnapshotStatus string

const (
	SnapshotNotYetAnalyzed SnapshotStatus = "NOT_YET_ANALYZED"
	SnapshotEmpty          SnapshotStatus = "EMPTY"
	SnapshotComplete       SnapshotStatus = "COMPLETE"
	SnapshotStale          SnapshotStatus = "STALE"
)

// ClassificationSnapshot is an immutable result of one ranking run.
type ClassificationSnapshot struct {
	CohortID        string                 `json:"cohort_id"`
	Status          SnapshotStatus         `json:"status"`
	Classifications []WalletClassification `json:"classifications"`
	StaleTokens     []string               `json:"stale_tokens,omitempty"`
	TrackedTokens   int                    `json:"tracked_tokens"`
	ComputedAt      int64                  `json:"computed_at"` // ms
}

// Clone returns a deep copy so callers never share live state.
func (s *ClassificationSnapshot) Clone() *ClassificationSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Classifications = make([]WalletClassification, len(s.Classifications))
	for i, c := range s.Classifications {
		out.Classifications[i] = c.Clone()
	}
	out.StaleTokens = append([]string(nil), s.StaleTokens...)
	return &out
}

// SortClassifications orders by tier desc, wins desc, average entry delay asc,
// then wallet address.
func SortClassifications(cs []WalletClassification) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() > b.Tier.Rank()
		}
		if a.TotalWins != b.TotalWins {
			return a.TotalWins > b.TotalWins
		}
		if a.AvgEntryDelayMs != b.AvgEntryDelayMs {
			return a.AvgEntryDelayMs < b.AvgEntryDelayMs
		}
		return a.WalletAddress < b.WalletAddress
	})
}

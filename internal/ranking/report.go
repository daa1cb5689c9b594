package ranking

import (
	"encoding/json"
	"sort"

	"solana-copytrade-lab/internal/domain"
)

// TokenSummary is the per-token section of the buyer/timing report.
type TokenSummary struct {
	TokenAddress string                      `json:"token_address"`
	EarlyBuyers  int                         `json:"early_buyers"`
	BucketCounts map[domain.TimingBucket]int `json:"bucket_counts"` // nested
	TotalSol     float64                     `json:"total_sol"`
	FirstBuyer   string                      `json:"first_buyer"`
}

// Report is the consolidated buyer/timing report for a cohort.
type Report struct {
	Tokens  []TokenSummary                `json:"tokens"`
	Wallets []domain.WalletClassification `json:"wallets"`
	Tiers   map[domain.Tier]int           `json:"tiers"`
}

// BuildReport aggregates results per token and per wallet.
// Tokens are sorted by address; wallets follow Rank ordering.
func (r *Ranker) BuildReport(results []*domain.WalletTokenResult) *Report {
	byToken := make(map[string]*TokenSummary)
	seen := make(map[[2]string]bool)

	for _, res := range results {
		if res == nil || !res.Bucket.Qualifies() {
			continue
		}
		key := [2]string{res.WalletAddress, res.TokenAddress}
		if seen[key] {
			continue
		}
		seen[key] = true

		ts, ok := byToken[res.TokenAddress]
		if !ok {
			ts = &TokenSummary{
				TokenAddress: res.TokenAddress,
				BucketCounts: make(map[domain.TimingBucket]int, len(domain.Buckets)),
			}
			byToken[res.TokenAddress] = ts
		}
		ts.EarlyBuyers++
		ts.TotalSol += res.SolInvested
		addNested(ts.BucketCounts, res.Bucket)
		if res.Rank == 1 {
			ts.FirstBuyer = res.WalletAddress
		}
	}

	report := &Report{
		Tokens:  make([]TokenSummary, 0, len(byToken)),
		Wallets: r.Rank(results),
		Tiers:   make(map[domain.Tier]int),
	}
	for _, ts := range byToken {
		report.Tokens = append(report.Tokens, *ts)
	}
	sort.Slice(report.Tokens, func(i, j int) bool {
		return report.Tokens[i].TokenAddress < report.Tokens[j].TokenAddress
	})
	for _, w := range report.Wallets {
		report.Tiers[w.Tier]++
	}

	return report
}

// Encode returns the canonical JSON of a snapshot.
// Map keys are emitted sorted, so identical snapshots encode to identical bytes.
func Encode(snap *domain.ClassificationSnapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (*domain.ClassificationSnapshot, error) {
	var snap domain.ClassificationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

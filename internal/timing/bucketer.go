// Package timing classifies buys against a token's launch into nested early-buy windows.
package timing

import (
	"sort"

	"solana-copytrade-lab/internal/domain"
)

// Window upper bounds in milliseconds, inclusive.
const (
	Window5m  int64 = 5 * 60 * 1000
	Window15m int64 = 15 * 60 * 1000
	Window30m int64 = 30 * 60 * 1000
	Window60m int64 = 60 * 60 * 1000
)

// BucketFor maps a launch-relative delay to its tightest bucket.
// Upper bounds are inclusive; anything past 60 minutes is BucketNone.
// Callers must reject negative deltas before calling.
func BucketFor(deltaMs int64) domain.TimingBucket {
	switch {
	case deltaMs <= Window5m:
		return domain.BucketLE5m
	case deltaMs <= Window15m:
		return domain.BucketLE15m
	case deltaMs <= Window30m:
		return domain.BucketLE30m
	case deltaMs <= Window60m:
		return domain.BucketLE60m
	default:
		return domain.BucketNone
	}
}

// Classify buckets a buy against its token launch.
// Returns *domain.InvalidEventError when the buy precedes the launch or does not
// belong to the launch's token.
func Classify(buy *domain.BuyEvent, launch *domain.TokenLaunch) (domain.TimingBucket, error) {
	if buy == nil || launch == nil {
		return domain.BucketNone, &domain.InvalidEventError{Reason: "missing buy or launch"}
	}
	if buy.TokenAddress != launch.Address {
		return domain.BucketNone, &domain.InvalidEventError{
			TokenAddress:  buy.TokenAddress,
			WalletAddress: buy.WalletAddress,
			Reason:        "buy token does not match launch " + launch.Address,
		}
	}
	if buy.WalletAddress == "" {
		return domain.BucketNone, &domain.InvalidEventError{
			TokenAddress: buy.TokenAddress,
			Reason:       "empty wallet address",
		}
	}

	delta := buy.Timestamp - launch.LaunchTimestamp
	if delta < 0 {
		return domain.BucketNone, &domain.InvalidEventError{
			TokenAddress:  buy.TokenAddress,
			WalletAddress: buy.WalletAddress,
			Reason:        "buy recorded before launch",
		}
	}

	return BucketFor(delta), nil
}

// BuildResults produces one WalletTokenResult per wallet that bought the token early.
// The earliest qualifying buy wins; ties go to the lexicographically smaller wallet.
// Rank is the 1-based position among all early buyers ordered the same way.
// Invalid events are returned separately and do not abort the token.
func BuildResults(launch *domain.TokenLaunch, buys []*domain.BuyEvent) ([]*domain.WalletTokenResult, []error) {
	var invalid []error
	first := make(map[string]*domain.BuyEvent)

	for _, buy := range buys {
		bucket, err := Classify(buy, launch)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		if !bucket.Qualifies() {
			continue
		}

		prev, ok := first[buy.WalletAddress]
		if !ok || earlier(buy, prev) {
			first[buy.WalletAddress] = buy
		}
	}

	ordered := make([]*domain.BuyEvent, 0, len(first))
	for _, buy := range first {
		ordered = append(ordered, buy)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return earlier(ordered[i], ordered[j])
	})

	results := make([]*domain.WalletTokenResult, 0, len(ordered))
	for i, buy := range ordered {
		delta := buy.Timestamp - launch.LaunchTimestamp
		results = append(results, &domain.WalletTokenResult{
			WalletAddress: buy.WalletAddress,
			TokenAddress:  launch.Address,
			Bucket:        BucketFor(delta),
			Rank:          i + 1,
			SolInvested:   buy.SolAmount,
			EntryDelayMs:  delta,
			BuyTimestamp:  buy.Timestamp,
		})
	}

	return results, invalid
}

// earlier orders buys by (timestamp ASC, wallet ASC, tx_signature ASC).
// The signature only breaks ties between two buys of the same wallet.
func earlier(a, b *domain.BuyEvent) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.WalletAddress != b.WalletAddress {
		return a.WalletAddress < b.WalletAddress
	}
	return a.TxSignature < b.TxSignature
}

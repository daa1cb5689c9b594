package timing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/domain"
)

const minute = int64(60 * 1000)

func TestBucketFor_Boundaries(t *testing.T) {
	tests := []struct {
		name  string
		delta int64
		want  domain.TimingBucket
	}{
		{"at launch", 0, domain.BucketLE5m},
		{"exactly 5m", 5 * minute, domain.BucketLE5m},
		{"just past 5m", 5*minute + 1, domain.BucketLE15m},
		{"exactly 15m", 15 * minute, domain.BucketLE15m},
		{"exactly 30m", 30 * minute, domain.BucketLE30m},
		{"exactly 60m", 60 * minute, domain.BucketLE60m},
		{"just past 60m", 60*minute + 1, domain.BucketNone},
		{"a day later", 24 * 60 * minute, domain.BucketNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketFor(tt.delta))
		})
	}
}

func TestClassify_PreLaunchIsInvalid(t *testing.T) {
	launch := &domain.TokenLaunch{Address: "mintX", LaunchTimestamp: 10 * minute}

	for _, ts := range []int64{0, 10*minute - 1} {
		buy := &domain.BuyEvent{WalletAddress: "walletA", TokenAddress: "mintX", Timestamp: ts}
		_, err := Classify(buy, launch)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidEvent))

		var invalid *domain.InvalidEventError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "walletA", invalid.WalletAddress)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	launch := &domain.TokenLaunch{Address: "mintX", LaunchTimestamp: 0}
	buy := &domain.BuyEvent{WalletAddress: "walletA", TokenAddress: "mintX", Timestamp: 12 * minute}

	first, err := Classify(buy, launch)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Classify(buy, launch)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, domain.BucketLE15m, first)
}

func TestClassify_TokenMismatch(t *testing.T) {
	launch := &domain.TokenLaunch{Address: "mintX"}
	buy := &domain.BuyEvent{WalletAddress: "walletA", TokenAddress: "mintY", Timestamp: minute}

	_, err := Classify(buy, launch)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestBuildResults_FirstBuyWinsAndRanks(t *testing.T) {
	launch := &domain.TokenLaunch{Address: "mintX", LaunchTimestamp: 0}
	buys := []*domain.BuyEvent{
		{WalletAddress: "walletB", TokenAddress: "mintX", Timestamp: 3 * minute, SolAmount: 2, TxSignature: "b1"},
		{WalletAddress: "walletA", TokenAddress: "mintX", Timestamp: 20 * minute, SolAmount: 9, TxSignature: "a2"},
		{WalletAddress: "walletA", TokenAddress: "mintX", Timestamp: 4 * minute, SolAmount: 1, TxSignature: "a1"},
		{WalletAddress: "walletC", TokenAddress: "mintX", Timestamp: 90 * minute, SolAmount: 5, TxSignature: "c1"},
		{WalletAddress: "walletD", TokenAddress: "mintX", Timestamp: -minute, SolAmount: 5, TxSignature: "d1"},
	}

	results, invalid := BuildResults(launch, buys)

	require.Len(t, invalid, 1, "pre-launch buy is reported, not fatal")
	require.Len(t, results, 2, "walletC bought after 60m and is excluded")

	assert.Equal(t, "walletB", results[0].WalletAddress)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, domain.BucketLE5m, results[0].Bucket)

	assert.Equal(t, "walletA", results[1].WalletAddress)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, 1.0, results[1].SolInvested, "earliest buy is kept")
	assert.Equal(t, 4*minute, results[1].EntryDelayMs)
}

func TestBuildResults_TieBreaksOnWallet(t *testing.T) {
	launch := &domain.TokenLaunch{Address: "mintX", LaunchTimestamp: 0}
	buys := []*domain.BuyEvent{
		{WalletAddress: "walletZ", TokenAddress: "mintX", Timestamp: minute},
		{WalletAddress: "walletA", TokenAddress: "mintX", Timestamp: minute},
	}

	results, _ := BuildResults(launch, buys)
	require.Len(t, results, 2)
	assert.Equal(t, "walletA", results[0].WalletAddress)
	assert.Equal(t, "walletZ", results[1].WalletAddress)
}

package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// WalletTokenResultStore is an in-memory implementation of storage.WalletTokenResultStore.
type WalletTokenResultStore struct {
	mu      sync.RWMutex
	byToken map[string]map[string]*domain.WalletTokenResult // token -> wallet -> result
}

// NewWalletTokenResultStore creates a new in-memory result store.
func NewWalletTokenResultStore() *WalletTokenResultStore {
	return &WalletTokenResultStore{
		byToken: make(map[string]map[string]*domain.WalletTokenResult),
	}
}

// ReplaceForToken atomically replaces all results of a token.
func (s *WalletTokenResultStore) ReplaceForToken(_ context.Context, tokenAddress string, results []*domain.WalletTokenResult) error {
	if tokenAddress == "" {
		return storage.ErrInvalidInput
	}

	fresh := make(map[string]*domain.WalletTokenResult, len(results))
	for _, r := range results {
		if r == nil || r.TokenAddress != tokenAddress || r.WalletAddress == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := fresh[r.WalletAddress]; exists {
			return storage.ErrDuplicateKey
		}
		resultCopy := *r
		fresh[r.WalletAddress] = &resultCopy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byToken[tokenAddress] = fresh
	return nil
}

// GetByTokens retrieves results for a set of tokens, ordered by token ASC, rank ASC.
func (s *WalletTokenResultStore) GetByTokens(_ context.Context, tokenAddresses []string) ([]*domain.WalletTokenResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletTokenResult
	for _, token := range tokenAddresses {
		for _, r := range s.byToken[token] {
			resultCopy := *r
			result = append(result, &resultCopy)
		}
	}

	sortResults(result)
	return result, nil
}

// GetByWallet retrieves all results for a wallet, ordered by token ASC.
func (s *WalletTokenResultStore) GetByWallet(_ context.Context, walletAddress string) ([]*domain.WalletTokenResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletTokenResult
	for _, wallets := range s.byToken {
		if r, ok := wallets[walletAddress]; ok {
			resultCopy := *r
			result = append(result, &resultCopy)
		}
	}

	sortResults(result)
	return result, nil
}

func sortResults(rs []*domain.WalletTokenResult) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].TokenAddress != rs[j].TokenAddress {
			return rs[i].TokenAddress < rs[j].TokenAddress
		}
		return rs[i].Rank < rs[j].Rank
	})
}

// Verify interface compliance at compile time.
var _ storage.WalletTokenResultStore = (*WalletTokenResultStore)(nil)

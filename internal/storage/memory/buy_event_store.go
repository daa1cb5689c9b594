package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// buyKey is the unique key for a buy event.
type buyKey struct {
	TokenAddress  string
	TxSignature   string
	WalletAddress string
}

// BuyEventStore is an in-memory implementation of storage.BuyEventStore.
type BuyEventStore struct {
	mu      sync.RWMutex
	data    map[buyKey]*domain.BuyEvent
	byToken map[string][]buyKey
}

// NewBuyEventStore creates a new in-memory buy event store.
func NewBuyEventStore() *BuyEventStore {
	return &BuyEventStore{
		data:    make(map[buyKey]*domain.BuyEvent),
		byToken: make(map[string][]buyKey),
	}
}

func keyOf(b *domain.BuyEvent) buyKey {
	return buyKey{TokenAddress: b.TokenAddress, TxSignature: b.TxSignature, WalletAddress: b.WalletAddress}
}

func validBuy(b *domain.BuyEvent) bool {
	return b != nil && b.TokenAddress != "" && b.WalletAddress != "" && b.TxSignature != ""
}

// Insert adds a new buy. Returns ErrDuplicateKey if (token_address, tx_signature, wallet_address) exists.
func (s *BuyEventStore) Insert(_ context.Context, b *domain.BuyEvent) error {
	if !validBuy(b) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(b)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	buyCopy := *b
	s.data[key] = &buyCopy
	s.byToken[b.TokenAddress] = append(s.byToken[b.TokenAddress], key)
	return nil
}

// InsertBulk adds multiple buys atomically. Fails entire batch on any duplicate.
func (s *BuyEventStore) InsertBulk(_ context.Context, buys []*domain.BuyEvent) error {
	if len(buys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check all keys first (atomicity)
	seen := make(map[buyKey]bool, len(buys))
	for _, b := range buys {
		if !validBuy(b) {
			return storage.ErrInvalidInput
		}
		key := keyOf(b)
		if _, exists := s.data[key]; exists || seen[key] {
			return storage.ErrDuplicateKey
		}
		seen[key] = true
	}

	for _, b := range buys {
		buyCopy := *b
		key := keyOf(b)
		s.data[key] = &buyCopy
		s.byToken[b.TokenAddress] = append(s.byToken[b.TokenAddress], key)
	}
	return nil
}

// GetByToken retrieves all buys for a token, ordered by timestamp ASC, wallet ASC.
func (s *BuyEventStore) GetByToken(_ context.Context, tokenAddress string) ([]*domain.BuyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byToken[tokenAddress]
	result := make([]*domain.BuyEvent, 0, len(keys))
	for _, key := range keys {
		buyCopy := *s.data[key]
		result = append(result, &buyCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		if result[i].WalletAddress != result[j].WalletAddress {
			return result[i].WalletAddress < result[j].WalletAddress
		}
		return result[i].TxSignature < result[j].TxSignature
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.BuyEventStore = (*BuyEventStore)(nil)

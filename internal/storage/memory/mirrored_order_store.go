package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

// MirroredOrderStore is an in-memory implementation of storage.MirroredOrderStore.
type MirroredOrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MirroredOrder // keyed by source_trade_id
}

// NewMirroredOrderStore creates a new in-memory order store.
func NewMirroredOrderStore() *MirroredOrderStore {
	return &MirroredOrderStore{
		data: make(map[string]*domain.MirroredOrder),
	}
}

// Insert adds a new order. Returns ErrDuplicateKey if source_trade_id exists.
func (s *MirroredOrderStore) Insert(_ context.Context, o *domain.MirroredOrder) error {
	if o == nil || o.SourceTradeID == "" || o.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.SourceTradeID]; exists {
		return storage.ErrDuplicateKey
	}

	orderCopy := *o
	s.data[o.SourceTradeID] = &orderCopy
	return nil
}

// Get retrieves an order by source trade id. Returns ErrNotFound if not exists.
func (s *MirroredOrderStore) Get(_ context.Context, sourceTradeID string) (*domain.MirroredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[sourceTradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	orderCopy := *o
	return &orderCopy, nil
}

// UpdateStatus applies a monotonic status transition.
func (s *MirroredOrderStore) UpdateStatus(_ context.Context, sourceTradeID string, update storage.OrderUpdate) (*domain.MirroredOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[sourceTradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if !o.Status.CanTransitionTo(update.Status) {
		return nil, storage.ErrInvalidTransition
	}

	o.Status = update.Status
	if update.Reason != "" {
		o.Reason = update.Reason
	}
	if update.BrokerOrderID != "" {
		o.BrokerOrderID = update.BrokerOrderID
	}
	if update.FillPrice != nil {
		o.FillPrice = *update.FillPrice
	}
	o.UpdatedAt = update.UpdatedAt

	orderCopy := *o
	return &orderCopy, nil
}

// ListBySession retrieves a session's orders, newest first, up to limit (0 = all).
func (s *MirroredOrderStore) ListBySession(_ context.Context, sessionID string, limit int) ([]*domain.MirroredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MirroredOrder
	for _, o := range s.data {
		if o.SessionID == sessionID {
			orderCopy := *o
			result = append(result, &orderCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].SourceTradeID < result[j].SourceTradeID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByStatus retrieves a session's orders in a given status, oldest first.
func (s *MirroredOrderStore) ListByStatus(_ context.Context, sessionID string, status domain.OrderStatus) ([]*domain.MirroredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MirroredOrder
	for _, o := range s.data {
		if o.SessionID == sessionID && o.Status == status {
			orderCopy := *o
			result = append(result, &orderCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].SourceTradeID < result[j].SourceTradeID
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.MirroredOrderStore = (*MirroredOrderStore)(nil)

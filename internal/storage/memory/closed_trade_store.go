package memory

import (
	"context"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ClosedTradeStore is an in-memory implementation of storage.ClosedTradeStore.
type ClosedTradeStore struct {
	mu   sync.RWMutex
	data map[string][]domain.ClosedTrade // keyed by run_id, in close order
}

// NewClosedTradeStore creates a new in-memory closed trade store.
func NewClosedTradeStore() *ClosedTradeStore {
	return &ClosedTradeStore{
		data: make(map[string][]domain.ClosedTrade),
	}
}

// InsertBulk appends the trades of a run. Fails entire batch on any duplicate.
func (s *ClosedTradeStore) InsertBulk(_ context.Context, runID string, trades []*domain.ClosedTrade) error {
	if len(trades) == 0 {
		return nil
	}
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.data[runID])+len(trades))
	for _, t := range s.data[runID] {
		existing[t.TradeID] = struct{}{}
	}

	// First pass: check for duplicates (existing + intra-batch)
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := existing[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		existing[t.TradeID] = struct{}{}
	}

	// Second pass: insert all
	for _, t := range trades {
		s.data[runID] = append(s.data[runID], *t)
	}

	return nil
}

// GetByRun retrieves all trades of a run in close order.
func (s *ClosedTradeStore) GetByRun(_ context.Context, runID string) ([]*domain.ClosedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[runID]
	result := make([]*domain.ClosedTrade, len(stored))
	for i := range stored {
		tradeCopy := stored[i]
		result[i] = &tradeCopy
	}
	return result, nil
}

var _ storage.ClosedTradeStore = (*ClosedTradeStore)(nil)

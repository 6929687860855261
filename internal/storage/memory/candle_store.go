package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by (instrument, timestamp_ms)
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

// candleKey generates a unique key for a candle.
func candleKey(instrument string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", instrument, timestampMs)
}

// InsertBulk adds multiple candles. Fails entire batch on duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(candles))

	// First pass: check for duplicates (existing + intra-batch)
	for _, c := range candles {
		if c == nil || c.Instrument == "" {
			return storage.ErrInvalidInput
		}
		key := candleKey(c.Instrument, c.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, c := range candles {
		candleCopy := *c
		s.data[candleKey(c.Instrument, c.TimestampMs)] = &candleCopy
	}

	return nil
}

// GetByInstrument retrieves all candles for an instrument, ordered by timestamp ASC.
func (s *CandleStore) GetByInstrument(_ context.Context, instrument string) ([]*domain.Candle, error) {
	return s.filter(func(c *domain.Candle) bool {
		return c.Instrument == instrument
	}), nil
}

// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(_ context.Context, instrument string, start, end int64) ([]*domain.Candle, error) {
	return s.filter(func(c *domain.Candle) bool {
		return c.Instrument == instrument && c.TimestampMs >= start && c.TimestampMs <= end
	}), nil
}

// ListInstruments returns the distinct instruments, sorted.
func (s *CandleStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []string
	for _, c := range s.data {
		if _, ok := seen[c.Instrument]; !ok {
			seen[c.Instrument] = struct{}{}
			result = append(result, c.Instrument)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *CandleStore) filter(keep func(*domain.Candle) bool) []*domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if keep(c) {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result
}

var _ storage.CandleStore = (*CandleStore)(nil)

package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

type storedRun struct {
	sweepID string
	result  domain.RunResult
}

// RunResultStore is an in-memory implementation of storage.RunResultStore.
type RunResultStore struct {
	mu   sync.RWMutex
	data map[string]*storedRun // keyed by run_id
}

// NewRunResultStore creates a new in-memory run result store.
func NewRunResultStore() *RunResultStore {
	return &RunResultStore{
		data: make(map[string]*storedRun),
	}
}

// stripped returns a copy without trades and equity, which are stored elsewhere.
func stripped(r *domain.RunResult) domain.RunResult {
	c := *r
	c.Trades = nil
	c.Equity = nil
	c.Params.Params = append([]domain.Param(nil), r.Params.Params...)
	return c
}

// Insert adds a run result. Returns ErrDuplicateKey if run_id exists.
func (s *RunResultStore) Insert(ctx context.Context, sweepID string, r *domain.RunResult) error {
	return s.InsertBulk(ctx, sweepID, []*domain.RunResult{r})
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *RunResultStore) InsertBulk(_ context.Context, sweepID string, results []*domain.RunResult) error {
	if len(results) == 0 {
		return nil
	}
	if sweepID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(results))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range results {
		if r == nil || r.RunID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RunID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RunID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RunID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range results {
		s.data[r.RunID] = &storedRun{sweepID: sweepID, result: stripped(r)}
	}

	return nil
}

// GetByID retrieves a run result by its ID. Returns ErrNotFound if not exists.
func (s *RunResultStore) GetByID(_ context.Context, runID string) (*domain.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	r := stripped(&stored.result)
	return &r, nil
}

// GetBySweep retrieves all results of a sweep, ordered by fitness_score DESC, param index ASC.
func (s *RunResultStore) GetBySweep(_ context.Context, sweepID string) ([]*domain.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunResult
	for _, stored := range s.data {
		if stored.sweepID == sweepID {
			r := stripped(&stored.result)
			result = append(result, &r)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].FitnessScore != result[j].FitnessScore {
			return result[i].FitnessScore > result[j].FitnessScore
		}
		return result[i].Params.Index < result[j].Params.Index
	})

	return result, nil
}

var _ storage.RunResultStore = (*RunResultStore)(nil)

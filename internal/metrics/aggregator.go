package metrics

import (
	"context"
	"errors"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ErrNoTrades is returned when no trades are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes statistics from persisted closed trades.
type Aggregator struct {
	tradeStore storage.ClosedTradeStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(tradeStore storage.ClosedTradeStore) *Aggregator {
	return &Aggregator{tradeStore: tradeStore}
}

func (a *Aggregator) load(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	trades, err := a.tradeStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}

	out := make([]domain.ClosedTrade, len(trades))
	for i, t := range trades {
		out[i] = *t
	}
	return out, nil
}

// ComputeForRun summarizes the stored trades of one run.
// Returns ErrNoTrades if the run has no trades.
func (a *Aggregator) ComputeForRun(ctx context.Context, runID string) (Summary, error) {
	trades, err := a.load(ctx, runID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(trades), nil
}

// PatternsForRun groups the stored trades of one run by entry features.
func (a *Aggregator) PatternsForRun(ctx context.Context, runID string) ([]PatternStats, error) {
	trades, err := a.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return GroupByFeatures(trades), nil
}

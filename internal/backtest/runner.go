package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

// Runner loads price history from storage and executes simulations.
type Runner struct {
	candles storage.CandleStore
}

// NewRunner creates a new backtest runner.
func NewRunner(candles storage.CandleStore) *Runner {
	return &Runner{
		candles: candles,
	}
}

// LoadHistory reads candles for the instruments within [from, to] and
// builds a validated history store. No instruments means every stored
// instrument; to <= 0 means no upper bound.
func (r *Runner) LoadHistory(ctx context.Context, instruments []string, from, to int64) (*history.Store, error) {
	if len(instruments) == 0 {
		var err error
		instruments, err = r.candles.ListInstruments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
	}

	series := make([]*history.Series, 0, len(instruments))
	for _, inst := range instruments {
		var (
			candles []*domain.Candle
			err     error
		)
		switch {
		case to > 0:
			candles, err = r.candles.GetByTimeRange(ctx, inst, from, to)
		case from > 0:
			candles, err = r.candles.GetByTimeRange(ctx, inst, from, math.MaxInt64)
		default:
			candles, err = r.candles.GetByInstrument(ctx, inst)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", inst, err)
		}

		values := make([]domain.Candle, len(candles))
		for i, c := range candles {
			values[i] = *c
		}
		s, err := history.NewSeries(inst, values)
		if err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return history.NewStore(series...)
}

// Run loads history and executes one simulation.
func (r *Runner) Run(ctx context.Context, instruments []string, from, to int64, strat strategy.Strategy, opts Options) (*domain.RunResult, error) {
	store, err := r.LoadHistory(ctx, instruments, from, to)
	if err != nil {
		return nil, err
	}
	return Execute(store, strat, opts)
}

// Execute runs one simulation over an already loaded store and records
// run metrics.
func Execute(store *history.Store, strat strategy.Strategy, opts Options) (*domain.RunResult, error) {
	sim, err := NewSimulator(store, strat, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := sim.Run()
	if err != nil {
		return nil, err
	}
	observability.RecordRun(res, time.Since(start).Seconds())
	return res, nil
}

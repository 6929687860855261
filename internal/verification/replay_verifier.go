package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

var (
	// ErrRunNotFound is returned when the run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrSweepNotFound is returned when a sweep has no stored runs.
	ErrSweepNotFound = errors.New("sweep not found")
)

// ReplayVerifier implements Verifier by re-running the simulator over the
// same history the sweep used.
type ReplayVerifier struct {
	candles storage.CandleStore
	results storage.RunResultStore
	trades  storage.ClosedTradeStore
	factory strategy.Factory
	opts    ReplayVerifierOptions
	log     logrus.FieldLogger
	loaded  *history.Store
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
// StrategyType, Instruments, From, To and Backtest must match the sweep
// being verified; they are not part of the stored records.
type ReplayVerifierOptions struct {
	CandleStore      storage.CandleStore
	RunResultStore   storage.RunResultStore
	ClosedTradeStore storage.ClosedTradeStore
	StrategyType     string
	Instruments      []string
	From, To         int64
	Backtest         backtest.Options
	Logger           logrus.FieldLogger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) (*ReplayVerifier, error) {
	if opts.CandleStore == nil || opts.RunResultStore == nil || opts.ClosedTradeStore == nil {
		return nil, fmt.Errorf("replay verifier: %w", storage.ErrInvalidInput)
	}
	factory, err := strategy.NewFactory(opts.StrategyType)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReplayVerifier{
		candles: opts.CandleStore,
		results: opts.RunResultStore,
		trades:  opts.ClosedTradeStore,
		factory: factory,
		opts:    opts,
		log:     log.WithField("component", "verification"),
	}, nil
}

// VerifyRun verifies a single run by replaying it.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	// 1. Load stored run and trades
	stored, err := v.results.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	storedTrades, err := v.trades.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades of %s: %w", runID, err)
	}

	// 2. Replay
	hist, err := v.loadHistory(ctx)
	if err != nil {
		return nil, err
	}
	replayed, replayErr := v.replay(hist, stored)

	result := &VerificationResult{
		RunID:        runID,
		StoredTrades: len(storedTrades),
		StoredProfit: stored.TotalProfit,
	}

	// 3. Compare
	switch {
	case replayErr != nil && stored.Failed():
		// Failed before and after.
	case replayErr != nil:
		result.Divergences = []FieldDivergence{{Field: "Error", Expected: "", Actual: replayErr.Error()}}
	case stored.Failed():
		result.Divergences = []FieldDivergence{{Field: "Error", Expected: stored.Error, Actual: ""}}
	default:
		replayedTrades := make([]*domain.ClosedTrade, len(replayed.Trades))
		for i := range replayed.Trades {
			replayedTrades[i] = &replayed.Trades[i]
		}
		result.ReplayedTrades = len(replayedTrades)
		result.ReplayedProfit = replayed.TotalProfit
		result.Divergences = append(CompareRunResults(stored, replayed), CompareTradeLists(storedTrades, replayedTrades)...)
	}
	result.Match = len(result.Divergences) == 0

	if !result.Match {
		v.log.WithFields(logrus.Fields{
			"run_id":      runID,
			"divergences": len(result.Divergences),
		}).Warn("replay diverged from stored run")
	}
	return result, nil
}

// VerifySweep verifies every run of a sweep. A run whose replay cannot be
// attempted is recorded as divergent instead of aborting the sweep.
func (v *ReplayVerifier) VerifySweep(ctx context.Context, sweepID string) (*VerificationReport, error) {
	runs, err := v.results.GetBySweep(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrSweepNotFound
	}

	report := &VerificationReport{
		SweepID:   sweepID,
		TotalRuns: len(runs),
		Results:   make([]VerificationResult, 0, len(runs)),
	}

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := v.VerifyRun(ctx, run.RunID)
		if err != nil {
			report.Results = append(report.Results, VerificationResult{
				RunID:        run.RunID,
				StoredProfit: run.TotalProfit,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}

// loadHistory loads the price history once per verifier.
func (v *ReplayVerifier) loadHistory(ctx context.Context) (*history.Store, error) {
	if v.loaded != nil {
		return v.loaded, nil
	}
	store, err := backtest.NewRunner(v.candles).LoadHistory(ctx, v.opts.Instruments, v.opts.From, v.opts.To)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	v.loaded = store
	return store, nil
}

// replay re-executes a stored run with the run ID as trade ID key, so the
// replayed trade IDs match the stored ones.
func (v *ReplayVerifier) replay(hist *history.Store, stored *domain.RunResult) (*domain.RunResult, error) {
	strat, err := v.factory(stored.Params)
	if err != nil {
		return nil, err
	}

	opts := v.opts.Backtest
	opts.RunKey = stored.RunID
	opts.Logger = v.log.WithField("run_id", stored.RunID)

	res, err := backtest.Execute(hist, strat, opts)
	if err != nil {
		return nil, err
	}
	res.RunID = stored.RunID
	return res, nil
}

// Ensure ReplayVerifier implements Verifier
var _ Verifier = (*ReplayVerifier)(nil)

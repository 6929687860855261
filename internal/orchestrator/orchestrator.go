// Package orchestrator runs a full parameter sweep.
// It coordinates: history loading → optimizer sweep → persistence → pattern aggregation
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/idhash"
	"strategy-lab/internal/metrics"
	"strategy-lab/internal/optimizer"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/strategy"
)

// ErrNoCandleStore is returned when the orchestrator has nothing to load history from.
var ErrNoCandleStore = errors.New("candle store is required")

// Orchestrator coordinates one sweep end to end.
// Flow: load history → sweep → persist results and trades → aggregate patterns
type Orchestrator struct {
	// Stores
	candleStore      storage.CandleStore
	runResultStore   storage.RunResultStore   // optional
	closedTradeStore storage.ClosedTradeStore // optional

	// Sweep definition
	strategyType string
	instruments  []string
	from, to     int64
	ranges       optimizer.Ranges
	scorer       optimizer.Scorer
	topN         int
	sweepID      string

	backtestOpts  backtest.Options
	optimizerOpts optimizer.Options

	log logrus.FieldLogger
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	CandleStore storage.CandleStore

	// Persistence, each may be nil to skip it
	RunResultStore   storage.RunResultStore
	ClosedTradeStore storage.ClosedTradeStore

	// Sweep definition
	StrategyType string
	Instruments  []string // empty means every stored instrument
	From, To     int64    // To <= 0 means no upper bound
	Ranges       optimizer.Ranges
	Scorer       optimizer.Scorer // nil uses the default scorer
	TopN         int
	SweepID      string // empty generates a random one

	Backtest  backtest.Options
	Optimizer optimizer.Options

	Logger logrus.FieldLogger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	sweepID := opts.SweepID
	if sweepID == "" {
		sweepID = uuid.NewString()
	}
	return &Orchestrator{
		candleStore:      opts.CandleStore,
		runResultStore:   opts.RunResultStore,
		closedTradeStore: opts.ClosedTradeStore,
		strategyType:     opts.StrategyType,
		instruments:      opts.Instruments,
		from:             opts.From,
		to:               opts.To,
		ranges:           opts.Ranges,
		scorer:           opts.Scorer,
		topN:             opts.TopN,
		sweepID:          sweepID,
		backtestOpts:     opts.Backtest,
		optimizerOpts:    opts.Optimizer,
		log:              log.WithFields(logrus.Fields{"component": "orchestrator", "sweep_id": sweepID}),
	}
}

// SweepID returns the identifier results are persisted under.
func (o *Orchestrator) SweepID() string {
	return o.sweepID
}

// Result contains results from orchestrator execution.
type Result struct {
	SweepID       string
	RunsCompleted int
	RunsFailed    int
	TradesStored  int
	Top           []*domain.RunResult

	// Patterns groups the trades of the best run by entry features.
	// Empty when trades are not persisted or the best run has none.
	Patterns []metrics.PatternStats

	// Persistence errors. They never abort the sweep.
	Errors []string
}

// Run executes the sweep.
// Phases:
//  1. Load price history
//  2. Run the sweep, persisting every finished run as it arrives
//  3. Aggregate entry patterns of the best run
//
// On cancellation the partial result is returned together with the error.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if o.candleStore == nil {
		return nil, ErrNoCandleStore
	}
	result := &Result{SweepID: o.sweepID}

	// Phase 1: history
	o.log.Info("phase 1: loading price history")
	store, err := backtest.NewRunner(o.candleStore).LoadHistory(ctx, o.instruments, o.from, o.to)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load history) failed: %w", err)
	}
	o.log.WithFields(logrus.Fields{
		"instruments": len(store.Instruments()),
		"timestamps":  len(store.Timeline()),
	}).Info("history loaded")

	factory, err := strategy.NewFactory(o.strategyType)
	if err != nil {
		return nil, err
	}

	// Phase 2: sweep
	o.log.Info("phase 2: running sweep")
	var (
		mu           sync.Mutex
		tradesStored int
		errs         []string
	)
	optOpts := o.optimizerOpts
	userHook := optOpts.OnResult
	optOpts.OnResult = func(r *domain.RunResult) {
		if userHook != nil {
			userHook(r)
		}
		n, err := o.persist(ctx, r)
		mu.Lock()
		defer mu.Unlock()
		tradesStored += n
		if err != nil {
			errs = append(errs, fmt.Sprintf("persist run %d: %v", r.Params.Index, err))
		}
	}
	if optOpts.Logger == nil {
		optOpts.Logger = o.log
	}

	opt := optimizer.New(optimizer.SimulatorRun(store, factory, o.backtestOpts, o.sweepID), optOpts)
	all, sweepErr := opt.RunAll(ctx, o.ranges, o.scorer)
	if sweepErr != nil && all == nil {
		return nil, fmt.Errorf("phase 2 (sweep) failed: %w", sweepErr)
	}

	result.RunsCompleted = len(all)
	for _, r := range all {
		if r.Failed() {
			result.RunsFailed++
		}
	}
	result.Top = optimizer.Top(all, o.topN)
	result.TradesStored = tradesStored
	result.Errors = append(result.Errors, errs...)
	o.log.WithFields(logrus.Fields{
		"completed":     result.RunsCompleted,
		"failed":        result.RunsFailed,
		"trades_stored": result.TradesStored,
		"errors":        len(errs),
	}).Info("sweep done")

	if sweepErr != nil {
		return result, fmt.Errorf("phase 2 (sweep) interrupted: %w", sweepErr)
	}

	// Phase 3: patterns of the best run
	if o.closedTradeStore != nil && len(result.Top) > 0 && !result.Top[0].Failed() {
		o.log.Info("phase 3: aggregating entry patterns")
		patterns, err := metrics.NewAggregator(o.closedTradeStore).PatternsForRun(ctx, result.Top[0].RunID)
		switch {
		case errors.Is(err, metrics.ErrNoTrades):
			// Nothing to group
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("aggregate run %s: %v", result.Top[0].RunID, err))
		default:
			result.Patterns = patterns
		}
	}

	o.log.WithFields(logrus.Fields{
		"top":      len(result.Top),
		"patterns": len(result.Patterns),
	}).Info("pipeline completed")

	return result, nil
}

// persist stores one finished run and its trades. Returns the number of
// trades written. Duplicates are skipped so a sweep can be re-run under
// the same ID.
func (o *Orchestrator) persist(ctx context.Context, r *domain.RunResult) (int, error) {
	if r.RunID == "" {
		r.RunID = idhash.ComputeRunID(o.sweepID, r.Params.Key())
	}

	stored := 0
	if o.closedTradeStore != nil && len(r.Trades) > 0 {
		trades := make([]*domain.ClosedTrade, len(r.Trades))
		for i := range r.Trades {
			trades[i] = &r.Trades[i]
		}
		err := o.closedTradeStore.InsertBulk(ctx, r.RunID, trades)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
		case err != nil:
			return 0, fmt.Errorf("store trades: %w", err)
		default:
			stored = len(trades)
		}
	}

	if o.runResultStore != nil {
		err := o.runResultStore.Insert(ctx, o.sweepID, r)
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return stored, fmt.Errorf("store result: %w", err)
		}
	}
	return stored, nil
}

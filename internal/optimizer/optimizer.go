// Package optimizer enumerates parameter sets, runs one backtest per set on
// a bounded worker pool and ranks the results by fitness.
package optimizer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/idhash"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/strategy"
)

const (
	DefaultWorkers       = 4
	DefaultProgressEvery = 100
)

// RunFunc executes one simulation for a parameter set.
// It is called concurrently from the worker pool.
type RunFunc func(ctx context.Context, params domain.ParameterSet) (*domain.RunResult, error)

// SimulatorRun returns a RunFunc that builds a strategy with factory and
// simulates it over store. The store is shared read-only by all workers.
// Run IDs derive from sweepID and the parameter key.
func SimulatorRun(store *history.Store, factory strategy.Factory, opts backtest.Options, sweepID string) RunFunc {
	return func(_ context.Context, params domain.ParameterSet) (*domain.RunResult, error) {
		runID := idhash.ComputeRunID(sweepID, params.Key())

		strat, err := factory(params)
		if err != nil {
			return nil, err
		}

		runOpts := opts
		runOpts.RunKey = runID
		if opts.Logger != nil {
			runOpts.Logger = opts.Logger.WithField("run_id", runID)
		}

		res, err := backtest.Execute(store, strat, runOpts)
		if err != nil {
			return nil, err
		}
		res.RunID = runID
		return res, nil
	}
}

// Options configures a sweep.
type Options struct {
	Ceiling       int  // max combinations; 0 uses DefaultCeiling
	Workers       int  // concurrent runs; 0 uses DefaultWorkers
	ProgressEvery int  // completed runs between progress reports; 0 uses DefaultProgressEvery
	StripDetail   bool // drop trades and equity curves after OnResult

	// OnResult is called once per finished run, from worker goroutines,
	// before detail is stripped. It must be safe for concurrent use.
	OnResult func(r *domain.RunResult)

	// Progress is called with the completed and total run counts at the
	// progress cadence and once at the end. Calls are serialized.
	Progress func(done, total int)

	Logger logrus.FieldLogger
}

// Optimizer runs parameter sweeps.
type Optimizer struct {
	run  RunFunc
	opts Options
	log  logrus.FieldLogger
}

// New creates an optimizer.
func New(run RunFunc, opts Options) *Optimizer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Optimizer{
		run:  run,
		opts: opts,
		log:  log.WithField("component", "optimizer"),
	}
}

// RunSweep runs every combination of ranges and returns the topN results
// by fitness. topN <= 0 returns all of them.
//
// Cancellation is checked between runs. On cancellation the results
// finished so far are ranked and returned together with ctx.Err().
func (o *Optimizer) RunSweep(ctx context.Context, ranges Ranges, scorer Scorer, topN int) ([]*domain.RunResult, error) {
	all, err := o.RunAll(ctx, ranges, scorer)
	return Top(all, topN), err
}

// RunAll is RunSweep without the topN cut.
func (o *Optimizer) RunAll(ctx context.Context, ranges Ranges, scorer Scorer) ([]*domain.RunResult, error) {
	sets, err := Enumerate(ranges, o.opts.Ceiling)
	if err != nil {
		return nil, err
	}
	if scorer == nil {
		scorer = DefaultScorer(DefaultTargetTrades)
	}

	start := time.Now()
	total := len(sets)
	o.log.WithFields(logrus.Fields{
		"combinations": total,
		"workers":      o.opts.Workers,
	}).Info("starting sweep")

	results := make([]*domain.RunResult, total)
	var done, failed atomic.Int64
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, params := range sets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := o.runOne(gctx, params, scorer)
			if res.Failed() {
				failed.Add(1)
			}
			observability.RecordSweepRun(res.Failed())
			if o.opts.OnResult != nil {
				o.opts.OnResult(res)
			}
			if o.opts.StripDetail {
				res.Trades = nil
				res.Equity = nil
			}
			results[i] = res

			if n := int(done.Add(1)); n%o.opts.ProgressEvery == 0 && n < total {
				progressMu.Lock()
				o.report(n, total, int(failed.Load()))
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	finished := make([]*domain.RunResult, 0, total)
	for _, r := range results {
		if r != nil {
			finished = append(finished, r)
		}
	}
	Rank(finished)
	o.report(len(finished), total, int(failed.Load()))

	status := "ok"
	if ctx.Err() != nil {
		status = "cancelled"
	}
	var best float64
	if len(finished) > 0 {
		best = finished[0].FitnessScore
	}
	observability.RecordSweep(status, time.Since(start).Seconds(), best, time.Now().Unix())
	o.log.WithFields(logrus.Fields{
		"status":       status,
		"completed":    len(finished),
		"failed":       failed.Load(),
		"best_fitness": best,
		"elapsed":      time.Since(start).Round(time.Millisecond),
	}).Info("sweep finished")

	return finished, ctx.Err()
}

// runOne never fails: an error becomes a failed result scoring 0.
func (o *Optimizer) runOne(ctx context.Context, params domain.ParameterSet, scorer Scorer) *domain.RunResult {
	res, err := o.run(ctx, params)
	if err != nil {
		o.log.WithFields(logrus.Fields{
			"index":  params.Index,
			"params": params.Key(),
		}).WithError(err).Warn("sweep run failed")
		return &domain.RunResult{
			Params: params,
			Error:  err.Error(),
		}
	}
	if res == nil {
		res = &domain.RunResult{}
	}
	res.Params = params
	res.FitnessScore = scorer(res)
	return res
}

func (o *Optimizer) report(done, total, failed int) {
	observability.UpdateSweepProgress(done, total)
	o.log.WithFields(logrus.Fields{
		"done":   done,
		"total":  total,
		"failed": failed,
	}).Info("sweep progress")
	if o.opts.Progress != nil {
		o.opts.Progress(done, total)
	}
}

// Rank sorts results by fitness descending; ties keep enumeration order.
func Rank(results []*domain.RunResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FitnessScore != results[j].FitnessScore {
			return results[i].FitnessScore > results[j].FitnessScore
		}
		return results[i].Params.Index < results[j].Params.Index
	})
}

// Top returns the first n results, or all of them when n <= 0.
func Top(results []*domain.RunResult, n int) []*domain.RunResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

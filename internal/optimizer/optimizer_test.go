package optimizer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/strategy"
)

func quietOptions() Options {
	logger, _ := test.NewNullLogger()
	return Options{Logger: logger}
}

// echoRun returns an empty successful result for every set.
func echoRun(_ context.Context, _ domain.ParameterSet) (*domain.RunResult, error) {
	return &domain.RunResult{}, nil
}

func indexScorer(r *domain.RunResult) float64 {
	return float64(r.Params.Index)
}

func indices(results []*domain.RunResult) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Params.Index
	}
	return out
}

func TestEnumerate_Order(t *testing.T) {
	sets, err := Enumerate(Ranges{
		"b": {1, 2, 3},
		"a": {10, 20},
	}, 0)
	require.NoError(t, err)
	require.Len(t, sets, 6)

	want := [][2]float64{{10, 1}, {10, 2}, {10, 3}, {20, 1}, {20, 2}, {20, 3}}
	for i, ps := range sets {
		assert.Equal(t, i, ps.Index)
		require.Len(t, ps.Params, 2)
		assert.Equal(t, "a", ps.Params[0].Name)
		assert.Equal(t, "b", ps.Params[1].Name)
		assert.Equal(t, want[i][0], ps.Params[0].Value)
		assert.Equal(t, want[i][1], ps.Params[1].Value)
	}
	assert.Equal(t, "a=20|b=3", sets[5].Key())
}

func TestEnumerate_Errors(t *testing.T) {
	_, err := Enumerate(Ranges{"a": {1, 2, 3}, "b": {1, 2, 3}}, 8)
	assert.ErrorIs(t, err, ErrParameterSpaceTooLarge)

	_, err = Enumerate(Ranges{"a": {1}, "b": {}}, 0)
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = Enumerate(Ranges{}, 0)
	assert.ErrorIs(t, err, ErrEmptyRange)

	sets, err := Enumerate(Ranges{"a": {1, 2, 3}, "b": {1, 2, 3}}, 9)
	require.NoError(t, err)
	assert.Len(t, sets, 9)
}

func TestRanges_SizeSaturates(t *testing.T) {
	huge := make([]float64, 1<<20)
	r := Ranges{"a": huge, "b": huge, "c": huge, "d": huge}
	assert.Equal(t, math.MaxInt, r.Size())

	_, err := Enumerate(r, 0)
	assert.ErrorIs(t, err, ErrParameterSpaceTooLarge)
}

func TestRunSweep_TopNByFitness(t *testing.T) {
	opt := New(echoRun, quietOptions())

	top, err := opt.RunSweep(context.Background(), Ranges{
		"x": {1, 2, 3},
		"y": {0, 1},
	}, indexScorer, 3)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 4, 3}, indices(top))
	assert.Equal(t, 5.0, top[0].FitnessScore)
}

func TestRunSweep_ParallelMatchesSequential(t *testing.T) {
	ranges := Ranges{"x": {1, 2, 3, 4}, "y": {1, 2, 3, 4}, "z": {0, 1}}
	score := func(r *domain.RunResult) float64 {
		m := r.Params.Map()
		return math.Mod(m["x"]*7+m["y"]*3+m["z"], 5)
	}

	seqOpts := quietOptions()
	seqOpts.Workers = 1
	seq, err := New(echoRun, seqOpts).RunSweep(context.Background(), ranges, score, 0)
	require.NoError(t, err)

	parOpts := quietOptions()
	parOpts.Workers = 8
	par, err := New(echoRun, parOpts).RunSweep(context.Background(), ranges, score, 0)
	require.NoError(t, err)

	assert.Len(t, par, 32)
	assert.Equal(t, indices(seq), indices(par))
}

func TestRunSweep_CeilingRejectsBeforeAnyRun(t *testing.T) {
	calls := 0
	run := func(_ context.Context, _ domain.ParameterSet) (*domain.RunResult, error) {
		calls++
		return &domain.RunResult{}, nil
	}
	opts := quietOptions()
	opts.Ceiling = 5

	_, err := New(run, opts).RunSweep(context.Background(), Ranges{"x": {1, 2, 3}, "y": {1, 2}}, nil, 0)
	assert.ErrorIs(t, err, ErrParameterSpaceTooLarge)
	assert.Zero(t, calls)
}

func TestRunSweep_FailedRunDoesNotAbortSweep(t *testing.T) {
	run := func(_ context.Context, ps domain.ParameterSet) (*domain.RunResult, error) {
		if ps.Index == 2 {
			return nil, errors.New("bad history")
		}
		return &domain.RunResult{TotalTrades: 20, WinRate: 50, ProfitFactor: 1.5}, nil
	}

	all, err := New(run, quietOptions()).RunSweep(context.Background(), Ranges{"x": {1, 2, 3, 4}}, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	last := all[3]
	assert.Equal(t, 2, last.Params.Index)
	assert.True(t, last.Failed())
	assert.Equal(t, "bad history", last.Error)
	assert.Zero(t, last.FitnessScore)
	assert.Zero(t, last.TotalTrades)

	for _, r := range all[:3] {
		assert.False(t, r.Failed())
		assert.InDelta(t, 0.25+0.15+0.2, r.FitnessScore, 1e-12)
	}
}

func TestRunSweep_CancellationBetweenRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	run := func(_ context.Context, _ domain.ParameterSet) (*domain.RunResult, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return &domain.RunResult{}, nil
	}
	opts := quietOptions()
	opts.Workers = 1

	partial, err := New(run, opts).RunSweep(ctx, Ranges{"x": {1, 2, 3, 4, 5, 6, 7, 8}}, indexScorer, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{2, 1, 0}, indices(partial))
}

func TestRunSweep_ProgressCadenceAndHooks(t *testing.T) {
	var (
		mu       sync.Mutex
		progress []int
		seen     int
	)
	run := func(_ context.Context, _ domain.ParameterSet) (*domain.RunResult, error) {
		return &domain.RunResult{
			Trades: []domain.ClosedTrade{{TradeID: "t"}},
			Equity: []domain.EquityPoint{{Balance: 1}},
		}, nil
	}
	opts := quietOptions()
	opts.Workers = 1
	opts.ProgressEvery = 4
	opts.StripDetail = true
	opts.Progress = func(done, _ int) { progress = append(progress, done) }
	opts.OnResult = func(r *domain.RunResult) {
		mu.Lock()
		defer mu.Unlock()
		seen++
		assert.Len(t, r.Trades, 1)
	}

	all, err := New(run, opts).RunSweep(context.Background(), Ranges{"x": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 8, 10}, progress)
	assert.Equal(t, 10, seen)
	for _, r := range all {
		assert.Nil(t, r.Trades)
		assert.Nil(t, r.Equity)
	}
}

func TestDefaultScorer(t *testing.T) {
	score := DefaultScorer(20)

	assert.Zero(t, score(&domain.RunResult{}))
	assert.Zero(t, score(&domain.RunResult{TotalTrades: 20, WinRate: 100, ProfitFactor: 5, Error: "boom"}))
	assert.InDelta(t, 1.0, score(&domain.RunResult{TotalTrades: 20, WinRate: 100, ProfitFactor: 999}), 1e-12)
	// 0.5*0.6 + 0.3*0.5 + 0.2*0.5
	assert.InDelta(t, 0.55, score(&domain.RunResult{TotalTrades: 30, WinRate: 60, ProfitFactor: 1.5}), 1e-12)
	// closeness floors at zero
	assert.InDelta(t, 0.5*0.6+0.3*0.5, score(&domain.RunResult{TotalTrades: 100, WinRate: 60, ProfitFactor: 1.5}), 1e-12)
}

func TestParseRanges(t *testing.T) {
	r, err := ParseRanges([]string{
		"fast_period=5,9",
		"stop_atr=1:2:0.5",
		"allow_short=true,false",
		"min_adx=0.1:0.3:0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 9}, r["fast_period"])
	assert.Equal(t, []float64{1, 1.5, 2}, r["stop_atr"])
	assert.Equal(t, []float64{1, 0}, r["allow_short"])
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, r["min_adx"])
	assert.Equal(t, 2*3*2*3, r.Size())
}

func TestParseRanges_Invalid(t *testing.T) {
	cases := []string{
		"noequals",
		"=1,2",
		"x=abc",
		"x=1:2",
		"x=2:1:0.5",
		"x=1:2:0",
	}
	for _, expr := range cases {
		_, err := ParseRanges([]string{expr})
		assert.ErrorIs(t, err, ErrInvalidRange, expr)
	}

	_, err := ParseRanges([]string{"x="})
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = ParseRanges([]string{"x=1", "x=2"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ParseRanges([]string{"x=0:inf:1"})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParseRanges_HugeStepCountRejectedBeforeAllocation(t *testing.T) {
	for _, expr := range []string{"x=0:1e30:1", "x=0:1e9:1", "x=0:1:1e-300"} {
		assert.NotPanics(t, func() {
			_, err := ParseRanges([]string{expr})
			assert.ErrorIs(t, err, ErrParameterSpaceTooLarge, expr)
		}, expr)
	}

	ranges, err := ParseRanges([]string{"x=0:999999:1"})
	require.NoError(t, err)
	assert.Len(t, ranges["x"], 1_000_000)
}

func TestSimulatorRun_EndToEnd(t *testing.T) {
	candles := make([]domain.Candle, 120)
	for i := range candles {
		c := 100 + 4*math.Sin(float64(i)/6) + 0.1*float64(i)
		candles[i] = domain.Candle{
			Instrument:  "EURUSD",
			TimestampMs: 1704067200000 + int64(i)*3_600_000,
			Open:        c,
			High:        c + 0.6,
			Low:         c - 0.6,
			Close:       c,
		}
	}
	store, err := history.FromCandles(candles)
	require.NoError(t, err)

	factory, err := strategy.NewFactory(strategy.TypeMomentumTrend)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	btOpts := backtest.DefaultOptions()
	btOpts.Logger = logger

	ranges := Ranges{
		"fast_period": {3, 5, 30}, // 30 >= slow_period fails in the factory
		"slow_period": {12, 20},
		"min_adx":     {5},
	}

	sweep := func() []*domain.RunResult {
		results, err := New(SimulatorRun(store, factory, btOpts, "sweep-1"), quietOptions()).
			RunSweep(context.Background(), ranges, DefaultScorer(5), 0)
		require.NoError(t, err)
		return results
	}

	first := sweep()
	require.Len(t, first, 6)

	failed := 0
	for _, r := range first {
		if r.Failed() {
			failed++
			assert.Contains(t, r.Error, "invalid strategy parameters")
			continue
		}
		assert.Len(t, r.RunID, 64)
		assert.Positive(t, r.TicksProcessed)
	}
	assert.Equal(t, 2, failed)

	second := sweep()
	for i := range first {
		assert.Equal(t, first[i].RunID, second[i].RunID)
		assert.Equal(t, first[i].Trades, second[i].Trades)
		assert.Equal(t, first[i].FitnessScore, second[i].FitnessScore)
	}
}

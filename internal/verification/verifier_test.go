package verification

import (
	"context"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/optimizer"
	"strategy-lab/internal/orchestrator"
	"strategy-lab/internal/storage"
	"strategy-lab/internal/storage/memory"
	"strategy-lab/internal/strategy"
)

const sweepID = "sweep-verify"

type fixture struct {
	candles *memory.CandleStore
	results *memory.RunResultStore
	trades  *memory.ClosedTradeStore
	bt      backtest.Options
}

// runSweep persists a small momentum sweep over synthetic candles.
func runSweep(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	candles := memory.NewCandleStore()
	batch := make([]*domain.Candle, 120)
	for i := range batch {
		c := 100 + 4*math.Sin(float64(i)/6) + 0.1*float64(i)
		batch[i] = &domain.Candle{
			Instrument:  "EURUSD",
			TimestampMs: 1704067200000 + int64(i)*3_600_000,
			Open:        c,
			High:        c + 0.6,
			Low:         c - 0.6,
			Close:       c,
		}
	}
	require.NoError(t, candles.InsertBulk(ctx, batch))

	bt := backtest.DefaultOptions()
	bt.Logger = logger

	f := fixture{
		candles: candles,
		results: memory.NewRunResultStore(),
		trades:  memory.NewClosedTradeStore(),
		bt:      bt,
	}

	_, err := orchestrator.New(orchestrator.Options{
		CandleStore:      f.candles,
		RunResultStore:   f.results,
		ClosedTradeStore: f.trades,
		StrategyType:     strategy.TypeMomentumTrend,
		Ranges: optimizer.Ranges{
			"fast_period": {3, 5, 30},
			"slow_period": {12, 20},
			"min_adx":     {5},
		},
		Scorer:    optimizer.DefaultScorer(5),
		SweepID:   sweepID,
		Backtest:  bt,
		Optimizer: optimizer.Options{Workers: 2, Logger: logger},
		Logger:    logger,
	}).Run(ctx)
	require.NoError(t, err)

	return f
}

func (f fixture) verifier(t *testing.T, results storage.RunResultStore, trades storage.ClosedTradeStore) *ReplayVerifier {
	t.Helper()
	logger, _ := test.NewNullLogger()
	v, err := NewReplayVerifier(ReplayVerifierOptions{
		CandleStore:      f.candles,
		RunResultStore:   results,
		ClosedTradeStore: trades,
		StrategyType:     strategy.TypeMomentumTrend,
		Backtest:         f.bt,
		Logger:           logger,
	})
	require.NoError(t, err)
	return v
}

// bestRun returns the top stored run, which has trades.
func (f fixture) bestRun(t *testing.T) *domain.RunResult {
	t.Helper()
	runs, err := f.results.GetBySweep(context.Background(), sweepID)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	require.False(t, runs[0].Failed())
	require.Greater(t, runs[0].TotalTrades, 0)
	return runs[0]
}

func TestReplayVerifier_VerifySweepMatches(t *testing.T) {
	f := runSweep(t)

	report, err := f.verifier(t, f.results, f.trades).VerifySweep(context.Background(), sweepID)
	require.NoError(t, err)

	assert.Equal(t, sweepID, report.SweepID)
	assert.Equal(t, 6, report.TotalRuns)
	assert.Equal(t, 6, report.MatchedRuns, "failed runs fail again on replay and count as matched")
	assert.Equal(t, 0, report.DivergentRuns)
	for _, r := range report.Results {
		assert.Empty(t, r.Divergences, r.RunID)
	}
}

func TestReplayVerifier_VerifyRunComparesTrades(t *testing.T) {
	f := runSweep(t)
	best := f.bestRun(t)

	result, err := f.verifier(t, f.results, f.trades).VerifyRun(context.Background(), best.RunID)
	require.NoError(t, err)

	assert.True(t, result.Match)
	assert.Equal(t, best.TotalTrades, result.StoredTrades)
	assert.Equal(t, best.TotalTrades, result.ReplayedTrades)
	assert.InDelta(t, best.TotalProfit, result.ReplayedProfit, FloatTolerance)
}

func TestReplayVerifier_DetectsTamperedStatistics(t *testing.T) {
	ctx := context.Background()
	f := runSweep(t)

	tampered := *f.bestRun(t)
	tampered.TotalProfit += 10

	results := memory.NewRunResultStore()
	require.NoError(t, results.Insert(ctx, sweepID, &tampered))

	result, err := f.verifier(t, results, f.trades).VerifyRun(ctx, tampered.RunID)
	require.NoError(t, err)

	assert.False(t, result.Match)
	require.Len(t, result.Divergences, 1)
	assert.Equal(t, "TotalProfit", result.Divergences[0].Field)
}

func TestReplayVerifier_DetectsMissingTrades(t *testing.T) {
	f := runSweep(t)
	best := f.bestRun(t)

	result, err := f.verifier(t, f.results, memory.NewClosedTradeStore()).VerifyRun(context.Background(), best.RunID)
	require.NoError(t, err)

	assert.False(t, result.Match)
	require.Len(t, result.Divergences, 1)
	assert.Equal(t, "TradeCount", result.Divergences[0].Field)
	assert.Equal(t, 0, result.StoredTrades)
	assert.Equal(t, best.TotalTrades, result.ReplayedTrades)
}

func TestReplayVerifier_NotFound(t *testing.T) {
	ctx := context.Background()
	f := runSweep(t)
	v := f.verifier(t, f.results, f.trades)

	_, err := v.VerifyRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = v.VerifySweep(ctx, "missing")
	assert.ErrorIs(t, err, ErrSweepNotFound)
}

func TestNewReplayVerifier_Errors(t *testing.T) {
	_, err := NewReplayVerifier(ReplayVerifierOptions{StrategyType: strategy.TypeMomentumTrend})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = NewReplayVerifier(ReplayVerifierOptions{
		CandleStore:      memory.NewCandleStore(),
		RunResultStore:   memory.NewRunResultStore(),
		ClosedTradeStore: memory.NewClosedTradeStore(),
		StrategyType:     "martingale",
	})
	assert.Error(t, err)
}

func TestCompareTrades(t *testing.T) {
	stored := &domain.ClosedTrade{
		TradeID: "t1",
		Position: domain.Position{
			Instrument:  "EURUSD",
			Side:        domain.SideBuy,
			EntryPrice:  1.1,
			StopLoss:    1.09,
			TakeProfit:  1.12,
			Size:        10000,
			EntryTimeMs: 1000,
		},
		ExitPrice:   1.12,
		ExitTimeMs:  2000,
		RealizedPnL: 200,
		ExitReason:  domain.ExitReasonTakeProfit,
	}

	same := *stored
	same.RealizedPnL += FloatTolerance / 2
	assert.Empty(t, CompareTrades(stored, &same))

	other := *stored
	other.ExitReason = domain.ExitReasonStopLoss
	other.ExitPrice = 1.09
	divs := CompareTrades(stored, &other)
	require.Len(t, divs, 2)
	assert.Equal(t, "ExitPrice", divs[0].Field)
	assert.Equal(t, "ExitReason", divs[1].Field)
}

func TestCompareTradeLists(t *testing.T) {
	a := &domain.ClosedTrade{TradeID: "a", RealizedPnL: 1}
	b := &domain.ClosedTrade{TradeID: "b", RealizedPnL: 2}
	c := &domain.ClosedTrade{TradeID: "c", RealizedPnL: 2}

	assert.Empty(t, CompareTradeLists([]*domain.ClosedTrade{a, b}, []*domain.ClosedTrade{a, b}))

	divs := CompareTradeLists([]*domain.ClosedTrade{a, b}, []*domain.ClosedTrade{a, c, b})
	require.Len(t, divs, 2)
	assert.Equal(t, "TradeCount", divs[0].Field)
	assert.Equal(t, "Trades[1].TradeID", divs[1].Field)
}

func TestRenderMarkdown(t *testing.T) {
	report := &VerificationReport{
		SweepID:       "s1",
		TotalRuns:     2,
		MatchedRuns:   1,
		DivergentRuns: 1,
		Results: []VerificationResult{
			{RunID: "0123456789abcdef", Match: true, StoredTrades: 3, ReplayedTrades: 3, StoredProfit: 12, ReplayedProfit: 12},
			{RunID: "run-b", StoredTrades: 2, ReplayedTrades: 1, Divergences: []FieldDivergence{
				{Field: "TradeCount", Expected: 2, Actual: 1},
			}},
		},
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Replay Verification Report",
		"## Verdict: DIVERGED",
		"Runs matched: 1/2",
		"| 1 | `0123456789ab` | 3/3 | 12.00/12.00 | MATCH |",
		"### run-b",
		"- TradeCount: stored 2, replayed 1",
	} {
		assert.Contains(t, md, want)
	}

	report.DivergentRuns = 0
	report.Results = report.Results[:1]
	md = RenderMarkdown(report)
	assert.Contains(t, md, "## Verdict: DETERMINISTIC")
	assert.NotContains(t, md, "## Divergences")
}

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

func createTestRunResult(runID string, index int, fitness float64) *domain.RunResult {
	return &domain.RunResult{
		RunID: runID,
		Params: domain.NewParameterSet(index, map[string]float64{
			"fast_period": 9,
			"stop_atr":    1.5,
		}),
		TotalTrades:    12,
		Wins:           7,
		Losses:         5,
		WinRate:        58.333,
		ProfitFactor:   1.8,
		TotalProfit:    2450.5,
		MaxDrawdownPct: 3.2,
		FitnessScore:   fitness,
		FinalBalance:   102450.5,
		Compliance: domain.ComplianceState{
			StartingBalance:   100000,
			CurrentBalance:    102450.5,
			PeakBalance:       103000,
			DailyLossUsed:     120,
			TotalDrawdownPct:  0.53,
			ConsecutiveLosses: 1,
			TradingDayCount:   14,
			Status:            domain.ComplianceActive,
		},
		TicksProcessed:  2000,
		StrategyErrors:  1,
		InvalidSignals:  2,
		IgnoredSignals:  30,
		RejectedSignals: 4,
	}
}

func createTestClosedTrade(id string, exitMs int64, pnl float64) *domain.ClosedTrade {
	return &domain.ClosedTrade{
		TradeID: id,
		Position: domain.Position{
			Instrument:  "EURUSD",
			Side:        domain.SideSell,
			EntryPrice:  1.1050,
			StopLoss:    1.1080,
			TakeProfit:  1.0990,
			Size:        33333.33,
			EntryTimeMs: exitMs - 3_600_000,
			StrategyTag: "MOMENTUM_TREND",
			Features: domain.EntryFeatures{
				RSI:      domain.RSIOverbought,
				Momentum: domain.MomentumDown,
				Trend:    domain.TrendStrong,
			},
			BarsHeld: 1,
		},
		ExitPrice:   1.0990,
		ExitTimeMs:  exitMs,
		RealizedPnL: pnl,
		PnLPips:     60,
		ExitReason:  domain.ExitReasonTakeProfit,
	}
}

func TestRunResultStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunResultStore(pool)

	r := createTestRunResult("run-001", 3, 0.72)
	r.Trades = []domain.ClosedTrade{*createTestClosedTrade("t1", 5000, 10)}
	require.NoError(t, store.Insert(ctx, "sweep-1", r))

	got, err := store.GetByID(ctx, "run-001")
	require.NoError(t, err)

	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, r.Params, got.Params)
	assert.Equal(t, r.TotalTrades, got.TotalTrades)
	assert.Equal(t, r.Wins, got.Wins)
	assert.Equal(t, r.Losses, got.Losses)
	assert.InDelta(t, r.WinRate, got.WinRate, 1e-9)
	assert.InDelta(t, r.ProfitFactor, got.ProfitFactor, 1e-9)
	assert.InDelta(t, r.TotalProfit, got.TotalProfit, 1e-9)
	assert.InDelta(t, r.FitnessScore, got.FitnessScore, 1e-9)
	assert.Equal(t, r.Compliance, got.Compliance)
	assert.Equal(t, r.IgnoredSignals, got.IgnoredSignals)
	assert.Empty(t, got.Trades, "trades are stored separately")
}

func TestRunResultStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunResultStore(pool)

	r := createTestRunResult("run-dup", 0, 0.5)
	require.NoError(t, store.Insert(ctx, "sweep-1", r))
	assert.ErrorIs(t, store.Insert(ctx, "sweep-1", r), storage.ErrDuplicateKey)

	assert.ErrorIs(t, store.Insert(ctx, "sweep-1", createTestRunResult("", 1, 0)), storage.ErrInvalidInput)
}

func TestRunResultStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewRunResultStore(pool).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunResultStore_InsertBulkAndGetBySweep(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunResultStore(pool)

	failed := createTestRunResult("run-c", 2, 0)
	failed.Error = "strategy fault"
	results := []*domain.RunResult{
		createTestRunResult("run-a", 0, 0.4),
		createTestRunResult("run-b", 1, 0.9),
		failed,
		createTestRunResult("run-d", 3, 0.4),
	}
	require.NoError(t, store.InsertBulk(ctx, "sweep-1", results))
	require.NoError(t, store.Insert(ctx, "sweep-2", createTestRunResult("run-other", 0, 1)))

	got, err := store.GetBySweep(ctx, "sweep-1")
	require.NoError(t, err)
	require.Len(t, got, 4)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.RunID
	}
	assert.Equal(t, []string{"run-b", "run-a", "run-d", "run-c"}, ids)
	assert.True(t, got[3].Failed())
	assert.Equal(t, "strategy fault", got[3].Error)
}

func TestRunResultStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunResultStore(pool)

	require.NoError(t, store.Insert(ctx, "sweep-1", createTestRunResult("run-x", 0, 0.1)))

	err := store.InsertBulk(ctx, "sweep-1", []*domain.RunResult{
		createTestRunResult("run-y", 1, 0.2),
		createTestRunResult("run-x", 0, 0.1),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "run-y")
	assert.ErrorIs(t, err, storage.ErrNotFound, "batch must roll back")
}

func TestClosedTradeStore_InsertBulkAndGetByRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewClosedTradeStore(pool)

	// Close order differs from trade ID order.
	var trades []*domain.ClosedTrade
	for i, id := range []string{"t-c", "t-a", "t-b"} {
		trades = append(trades, createTestClosedTrade(id, int64(10_000+i*1000), float64(i)*100-50))
	}
	require.NoError(t, store.InsertBulk(ctx, "run-1", trades))
	require.NoError(t, store.InsertBulk(ctx, "run-2", trades[:1]))

	got, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range trades {
		assert.Equal(t, *trades[i], *got[i], fmt.Sprintf("trade %d", i))
	}

	err = store.InsertBulk(ctx, "run-1", trades[:1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	none, err := store.GetByRun(ctx, "run-missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

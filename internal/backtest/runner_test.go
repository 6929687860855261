package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/storage/memory"
)

func seededCandleStore(t *testing.T) *memory.CandleStore {
	t.Helper()
	store := memory.NewCandleStore()
	var all []*domain.Candle
	for _, cs := range [][]domain.Candle{
		bars("EURUSD", seq(10, 1.10, 0.001)),
		bars("GBPUSD", seq(10, 1.25, -0.001)),
	} {
		for i := range cs {
			all = append(all, &cs[i])
		}
	}
	require.NoError(t, store.InsertBulk(context.Background(), all))
	return store
}

func TestRunner_LoadHistoryAllInstruments(t *testing.T) {
	runner := NewRunner(seededCandleStore(t))

	hist, err := runner.LoadHistory(context.Background(), nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, hist.Instruments())
	assert.Len(t, hist.Timeline(), 10)
}

func TestRunner_LoadHistoryTimeRange(t *testing.T) {
	runner := NewRunner(seededCandleStore(t))

	hist, err := runner.LoadHistory(context.Background(), []string{"EURUSD"}, ts(2), ts(5))
	require.NoError(t, err)
	assert.Equal(t, []int64{ts(2), ts(3), ts(4), ts(5)}, hist.Timeline())

	series, err := hist.Series("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 4, series.Len())
}

func TestRunner_LoadHistoryUnknownInstrument(t *testing.T) {
	runner := NewRunner(seededCandleStore(t))

	_, err := runner.LoadHistory(context.Background(), []string{"USDCHF"}, 0, 0)
	assert.ErrorIs(t, err, history.ErrEmptySeries)
}

func TestRunner_Run(t *testing.T) {
	runner := NewRunner(seededCandleStore(t))
	stub := NewStubStrategy(0, nil)

	res, err := runner.Run(context.Background(), []string{"EURUSD", "GBPUSD"}, 0, 0, stub, quietOptions())
	require.NoError(t, err)
	assert.Equal(t, 10, res.TicksProcessed)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 100000.0, res.FinalBalance)
	assert.Len(t, stub.Calls(), 10)
}

package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/indicators"
)

// trendView builds n bars with close = start + i*step and a one-unit
// high/low range, advances a view to the last bar and returns the
// snapshot at that bar.
func trendView(t *testing.T, inst string, n int, start, step float64) (domain.MarketSnapshot, *history.View) {
	t.Helper()
	candles := make([]domain.Candle, n)
	for i := range candles {
		c := start + float64(i)*step
		candles[i] = domain.Candle{
			Instrument:  inst,
			TimestampMs: int64(i+1) * 60_000,
			Open:        c,
			High:        c + 0.5,
			Low:         c - 0.5,
			Close:       c,
		}
	}
	series, err := history.NewSeries(inst, candles)
	require.NoError(t, err)
	store, err := history.NewStore(series)
	require.NoError(t, err)

	view := history.NewView(store)
	last := candles[n-1]
	view.Advance(last.TimestampMs)
	return domain.NewMarketSnapshot(last.TimestampMs, []domain.Candle{last}), view
}

func TestMomentumTrend_BuysRisingMarket(t *testing.T) {
	s := NewMomentumTrend(DefaultMomentumTrendParams())
	snap, view := trendView(t, "EURUSD", 60, 100, 1)

	signals, err := s.OnTick(snap, view)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	require.NoError(t, sig.Validate())
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.Equal(t, 159.0, sig.EntryPrice)

	atr, err := indicators.LastATR(view.Highs("EURUSD"), view.Lows("EURUSD"), view.Closes("EURUSD"), 14)
	require.NoError(t, err)
	assert.InDelta(t, 159.0-1.5*atr, sig.StopLoss, 1e-9)
	assert.InDelta(t, 159.0+3.0*atr, sig.TakeProfit, 1e-9)
	assert.Equal(t, 100.0, sig.Strength)
	assert.Equal(t, s.ID(), sig.StrategyTag)
	assert.Equal(t, domain.EntryFeatures{
		RSI:      domain.RSIOverbought,
		Momentum: domain.MomentumUp,
		Trend:    domain.TrendStrong,
	}, sig.Features)
}

func TestMomentumTrend_SellsFallingMarketWhenAllowed(t *testing.T) {
	snap, view := trendView(t, "EURUSD", 60, 200, -1)

	signals, err := NewMomentumTrend(DefaultMomentumTrendParams()).OnTick(snap, view)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.SideSell, signals[0].Side)
	assert.NoError(t, signals[0].Validate())

	p := DefaultMomentumTrendParams()
	p.AllowShort = false
	signals, err = NewMomentumTrend(p).OnTick(snap, view)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentumTrend_SkipsDuringWarmUp(t *testing.T) {
	s := NewMomentumTrend(DefaultMomentumTrendParams())
	assert.Equal(t, 29, s.WarmUp("EURUSD"))

	snap, view := trendView(t, "EURUSD", 10, 100, 1)
	signals, err := s.OnTick(snap, view)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentumTrend_FlatMarketHasNoTrend(t *testing.T) {
	snap, view := trendView(t, "EURUSD", 60, 100, 0)

	signals, err := NewMomentumTrend(DefaultMomentumTrendParams()).OnTick(snap, view)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestRSIReversion_BuysOversold(t *testing.T) {
	s := NewRSIReversion(DefaultRSIReversionParams())
	snap, view := trendView(t, "USDJPY", 20, 200, -1)

	signals, err := s.OnTick(snap, view)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	require.NoError(t, sig.Validate())
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.Equal(t, 181.0, sig.EntryPrice)

	atr, err := indicators.LastATR(view.Highs("USDJPY"), view.Lows("USDJPY"), view.Closes("USDJPY"), 14)
	require.NoError(t, err)
	assert.InDelta(t, 181.0-atr, sig.StopLoss, 1e-9)
	assert.InDelta(t, 181.0+2*atr, sig.TakeProfit, 1e-9)
	assert.Equal(t, 60.0, sig.Strength)
	assert.Equal(t, domain.RSIOversold, sig.Features.RSI)
}

func TestRSIReversion_SellsOverbought(t *testing.T) {
	snap, view := trendView(t, "USDJPY", 20, 100, 1)

	signals, err := NewRSIReversion(DefaultRSIReversionParams()).OnTick(snap, view)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.SideSell, signals[0].Side)
}

func TestRSIReversion_MaxADXFiltersTrends(t *testing.T) {
	p := DefaultRSIReversionParams()
	p.MaxADX = 40
	snap, view := trendView(t, "USDJPY", 40, 200, -1)

	signals, err := NewRSIReversion(p).OnTick(snap, view)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// Package indicators computes technical indicators over ordered price windows.
// All functions are pure: they never retain or mutate their inputs.
package indicators

import (
	"errors"
	"math"

	"github.com/montanaflynn/stats"
)

var (
	// ErrInsufficientHistory is returned when the window is too short to
	// compute the indicator. Callers skip the tick rather than fail.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInvalidPeriod is returned for a non-positive period or lookback.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrLengthMismatch is returned when high/low/close differ in length.
	ErrLengthMismatch = errors.New("series length mismatch")

	// ErrZeroBase is returned when a ratio would divide by zero.
	ErrZeroBase = errors.New("zero base value")
)

// MAKind selects the moving average flavour.
type MAKind int

const (
	Simple MAKind = iota
	Exponential
)

// MovingAverage returns the latest moving average value of series.
// The exponential variant uses k = 2/(period+1) seeded with the first value.
func MovingAverage(series []float64, period int, kind MAKind) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(series) < period {
		return 0, ErrInsufficientHistory
	}

	switch kind {
	case Exponential:
		k := 2.0 / float64(period+1)
		ema := series[0]
		for _, v := range series[1:] {
			ema = v*k + ema*(1-k)
		}
		return ema, nil
	default:
		return stats.Mean(series[len(series)-period:])
	}
}

// RSI returns the relative strength index over the trailing period deltas
// using simple averages of gains and losses.
// Returns 50 when fewer than period+1 points exist and 100 when the
// average loss is zero.
func RSI(series []float64, period int) float64 {
	if period <= 0 || len(series) < period+1 {
		return 50.0
	}

	var gains, losses float64
	for i := len(series) - period; i < len(series); i++ {
		change := series[i] - series[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// trueRange returns the true range for each bar. The first bar has no
// previous close, so its range is high-low.
func trueRange(high, low, close []float64) []float64 {
	tr := make([]float64, len(high))
	for i := range high {
		r := high[i] - low[i]
		if i > 0 {
			r = math.Max(r, math.Abs(high[i]-close[i-1]))
			r = math.Max(r, math.Abs(low[i]-close[i-1]))
		}
		tr[i] = r
	}
	return tr
}

func checkHLC(high, low, close []float64, period int) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}
	if len(high) != len(low) || len(high) != len(close) {
		return ErrLengthMismatch
	}
	return nil
}

// ATR returns the Wilder-smoothed average true range for every bar.
// The first period-1 values are NaN.
func ATR(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC(high, low, close, period); err != nil {
		return nil, err
	}
	if len(high) < period {
		return nil, ErrInsufficientHistory
	}

	tr := trueRange(high, low, close)
	out := make([]float64, len(tr))
	for i := 0; i < period-1; i++ {
		out[i] = math.NaN()
	}

	var sum float64
	for _, v := range tr[:period] {
		sum += v
	}
	out[period-1] = sum / float64(period)

	p := float64(period)
	for i := period; i < len(tr); i++ {
		out[i] = (out[i-1]*(p-1) + tr[i]) / p
	}
	return out, nil
}

// LastATR returns the most recent ATR value.
func LastATR(high, low, close []float64, period int) (float64, error) {
	atr, err := ATR(high, low, close, period)
	if err != nil {
		return 0, err
	}
	return atr[len(atr)-1], nil
}

// ADX returns the latest average directional index.
// It needs at least 2*period bars: period to seed the smoothed
// directional movement and period DX values to seed the ADX.
func ADX(high, low, close []float64, period int) (float64, error) {
	if err := checkHLC(high, low, close, period); err != nil {
		return 0, err
	}
	n := len(high)
	if n < 2*period {
		return 0, ErrInsufficientHistory
	}

	tr := trueRange(high, low, close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Seed the Wilder sums with bars 1..period.
	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	p := float64(period)
	dxs := make([]float64, 0, n-period)
	dxs = append(dxs, directionalIndex(sPlus, sMinus, sTR))
	for i := period + 1; i < n; i++ {
		sTR = sTR - sTR/p + tr[i]
		sPlus = sPlus - sPlus/p + plusDM[i]
		sMinus = sMinus - sMinus/p + minusDM[i]
		dxs = append(dxs, directionalIndex(sPlus, sMinus, sTR))
	}

	var adx float64
	for _, dx := range dxs[:period] {
		adx += dx
	}
	adx /= p
	for _, dx := range dxs[period:] {
		adx = (adx*(p-1) + dx) / p
	}
	return adx, nil
}

func directionalIndex(plusDM, minusDM, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

// Momentum returns the fractional change from series[len-lookback] to the
// last value.
func Momentum(series []float64, lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(series) < lookback {
		return 0, ErrInsufficientHistory
	}
	base := series[len(series)-lookback]
	if base == 0 {
		return 0, ErrZeroBase
	}
	return (series[len(series)-1] - base) / base, nil
}

package strategy

import (
	"errors"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/indicators"
)

const (
	featureRSIPeriod   = 14
	featureADXPeriod   = 14
	featureMomLookback = 10
)

// classifyEntry describes the market state at the current bar.
// Indicators that cannot be computed yet leave their field at the zero value.
func classifyEntry(hist *history.View, instrument string) domain.EntryFeatures {
	closes := hist.Closes(instrument)

	var f domain.EntryFeatures
	if len(closes) > featureRSIPeriod {
		f.RSI = domain.ClassifyRSI(indicators.RSI(closes, featureRSIPeriod))
	}
	if m, err := indicators.Momentum(closes, featureMomLookback); err == nil {
		f.Momentum = domain.ClassifyMomentum(m)
	}
	if adx, err := indicators.ADX(hist.Highs(instrument), hist.Lows(instrument), closes, featureADXPeriod); err == nil {
		f.Trend = domain.ClassifyTrend(adx)
	}
	return f
}

// skippable reports whether an indicator error only means "not yet".
func skippable(err error) bool {
	return errors.Is(err, indicators.ErrInsufficientHistory) || errors.Is(err, indicators.ErrZeroBase)
}

func maxInt(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

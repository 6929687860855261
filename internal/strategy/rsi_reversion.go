package strategy

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/indicators"
)

// RSIReversionParams configures RSIReversion.
type RSIReversionParams struct {
	RSIPeriod  int
	Oversold   float64
	Overbought float64
	ATRPeriod  int
	StopATR    float64
	TargetATR  float64
	MaxADX     float64 // skip strongly trending markets; 0 disables
}

// DefaultRSIReversionParams returns the baseline configuration.
func DefaultRSIReversionParams() RSIReversionParams {
	return RSIReversionParams{
		RSIPeriod:  14,
		Oversold:   30,
		Overbought: 70,
		ATRPeriod:  14,
		StopATR:    1.0,
		TargetATR:  2.0,
		MaxADX:     0,
	}
}

// RSIReversion fades RSI extremes: buys oversold, sells overbought.
type RSIReversion struct {
	p RSIReversionParams
}

// NewRSIReversion creates an RSIReversion strategy.
func NewRSIReversion(p RSIReversionParams) *RSIReversion {
	return &RSIReversion{p: p}
}

// Params returns the strategy configuration.
func (s *RSIReversion) Params() RSIReversionParams {
	return s.p
}

// ID returns the strategy identifier including parameters.
func (s *RSIReversion) ID() string {
	return fmt.Sprintf("%s_%d_%g_%g_sl%g_tp%g",
		TypeRSIReversion, s.p.RSIPeriod, s.p.Oversold, s.p.Overbought, s.p.StopATR, s.p.TargetATR)
}

// WarmUp returns the bars needed for RSI and ATR to be defined.
func (s *RSIReversion) WarmUp(_ string) int {
	n := maxInt(s.p.RSIPeriod+1, s.p.ATRPeriod)
	if s.p.MaxADX > 0 {
		n = maxInt(n, 2*featureADXPeriod)
	}
	return n
}

// OnTick evaluates every quoted instrument.
func (s *RSIReversion) OnTick(snap domain.MarketSnapshot, hist *history.View) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, inst := range snap.Instruments() {
		closes := hist.Closes(inst)
		if len(closes) < s.p.RSIPeriod+1 {
			continue
		}
		rsi := indicators.RSI(closes, s.p.RSIPeriod)

		var side domain.Side
		var strength float64
		switch {
		case rsi < s.p.Oversold:
			side, strength = domain.SideBuy, s.p.Oversold-rsi
		case rsi > s.p.Overbought:
			side, strength = domain.SideSell, rsi-s.p.Overbought
		default:
			continue
		}

		highs, lows := hist.Highs(inst), hist.Lows(inst)
		atr, err := indicators.LastATR(highs, lows, closes, s.p.ATRPeriod)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, fmt.Errorf("%s %s: %w", s.ID(), inst, err)
		}
		if atr <= 0 {
			continue
		}
		if s.p.MaxADX > 0 {
			adx, err := indicators.ADX(highs, lows, closes, featureADXPeriod)
			if err != nil {
				if skippable(err) {
					continue
				}
				return nil, fmt.Errorf("%s %s: %w", s.ID(), inst, err)
			}
			if adx > s.p.MaxADX {
				continue
			}
		}

		q, _ := snap.Quote(inst)
		entry := q.EntryPrice(side)
		sign := side.Sign()
		signals = append(signals, domain.Signal{
			Instrument:  inst,
			Side:        side,
			EntryPrice:  entry,
			StopLoss:    entry - sign*s.p.StopATR*atr,
			TakeProfit:  entry + sign*s.p.TargetATR*atr,
			Strength:    math.Min(strength*2, 100),
			StrategyTag: s.ID(),
			Features:    classifyEntry(hist, inst),
		})
	}
	return signals, nil
}

// Ensure RSIReversion implements Strategy
var _ Strategy = (*RSIReversion)(nil)

package strategy

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/indicators"
)

// MomentumTrendParams configures MomentumTrend.
type MomentumTrendParams struct {
	FastPeriod       int
	SlowPeriod       int
	ADXPeriod        int
	MinADX           float64
	MomentumLookback int
	ATRPeriod        int
	StopATR          float64 // stop distance in ATRs
	TargetATR        float64 // target distance in ATRs
	AllowShort       bool
}

// DefaultMomentumTrendParams returns the baseline configuration.
func DefaultMomentumTrendParams() MomentumTrendParams {
	return MomentumTrendParams{
		FastPeriod:       9,
		SlowPeriod:       21,
		ADXPeriod:        14,
		MinADX:           20,
		MomentumLookback: 10,
		ATRPeriod:        14,
		StopATR:          1.5,
		TargetATR:        3.0,
		AllowShort:       true,
	}
}

// MomentumTrend enters in the direction of the fast/slow EMA alignment
// when ADX confirms a trend and momentum agrees. Stops and targets are
// placed at ATR multiples from the entry.
type MomentumTrend struct {
	p MomentumTrendParams
}

// NewMomentumTrend creates a MomentumTrend strategy.
func NewMomentumTrend(p MomentumTrendParams) *MomentumTrend {
	return &MomentumTrend{p: p}
}

// Params returns the strategy configuration.
func (s *MomentumTrend) Params() MomentumTrendParams {
	return s.p
}

// ID returns the strategy identifier including parameters.
func (s *MomentumTrend) ID() string {
	return fmt.Sprintf("%s_%d_%d_adx%g_sl%g_tp%g",
		TypeMomentumTrend, s.p.FastPeriod, s.p.SlowPeriod, s.p.MinADX, s.p.StopATR, s.p.TargetATR)
}

// WarmUp returns the bars needed for every indicator to be defined.
func (s *MomentumTrend) WarmUp(_ string) int {
	return maxInt(s.p.SlowPeriod, 2*s.p.ADXPeriod, s.p.ATRPeriod, s.p.MomentumLookback) + 1
}

// OnTick evaluates every quoted instrument.
func (s *MomentumTrend) OnTick(snap domain.MarketSnapshot, hist *history.View) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, inst := range snap.Instruments() {
		sig, ok, err := s.evaluate(snap, hist, inst)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, fmt.Errorf("%s %s: %w", s.ID(), inst, err)
		}
		if ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (s *MomentumTrend) evaluate(snap domain.MarketSnapshot, hist *history.View, inst string) (domain.Signal, bool, error) {
	closes := hist.Closes(inst)
	highs, lows := hist.Highs(inst), hist.Lows(inst)

	fast, err := indicators.MovingAverage(closes, s.p.FastPeriod, indicators.Exponential)
	if err != nil {
		return domain.Signal{}, false, err
	}
	slow, err := indicators.MovingAverage(closes, s.p.SlowPeriod, indicators.Exponential)
	if err != nil {
		return domain.Signal{}, false, err
	}
	adx, err := indicators.ADX(highs, lows, closes, s.p.ADXPeriod)
	if err != nil {
		return domain.Signal{}, false, err
	}
	mom, err := indicators.Momentum(closes, s.p.MomentumLookback)
	if err != nil {
		return domain.Signal{}, false, err
	}
	atr, err := indicators.LastATR(highs, lows, closes, s.p.ATRPeriod)
	if err != nil {
		return domain.Signal{}, false, err
	}

	if adx < s.p.MinADX || atr <= 0 {
		return domain.Signal{}, false, nil
	}

	var side domain.Side
	switch {
	case fast > slow && mom > 0:
		side = domain.SideBuy
	case fast < slow && mom < 0 && s.p.AllowShort:
		side = domain.SideSell
	default:
		return domain.Signal{}, false, nil
	}

	q, _ := snap.Quote(inst)
	entry := q.EntryPrice(side)
	sign := side.Sign()
	return domain.Signal{
		Instrument:  inst,
		Side:        side,
		EntryPrice:  entry,
		StopLoss:    entry - sign*s.p.StopATR*atr,
		TakeProfit:  entry + sign*s.p.TargetATR*atr,
		Strength:    math.Min(adx, 100),
		StrategyTag: s.ID(),
		Features:    classifyEntry(hist, inst),
	}, true, nil
}

// Ensure MomentumTrend implements Strategy
var _ Strategy = (*MomentumTrend)(nil)

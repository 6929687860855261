package strategy

import (
	"errors"
	"fmt"

	"strategy-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrInvalidParams       = errors.New("invalid strategy parameters")
)

// Factory builds a Strategy from one ParameterSet of a sweep.
type Factory func(params domain.ParameterSet) (Strategy, error)

// NewFactory returns a Factory for the given strategy type.
func NewFactory(strategyType string) (Factory, error) {
	switch strategyType {
	case TypeMomentumTrend, TypeRSIReversion:
		return func(params domain.ParameterSet) (Strategy, error) {
			return FromParams(strategyType, params)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, strategyType)
	}
}

// FromParams creates a Strategy from a ParameterSet.
// Missing params fall back to the strategy defaults.
// Returns clear errors for invalid params.
func FromParams(strategyType string, params domain.ParameterSet) (Strategy, error) {
	switch strategyType {
	case TypeMomentumTrend:
		return momentumTrendFromParams(params)
	case TypeRSIReversion:
		return rsiReversionFromParams(params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, strategyType)
	}
}

// momentumTrendFromParams creates MomentumTrend from params.
func momentumTrendFromParams(ps domain.ParameterSet) (*MomentumTrend, error) {
	d := DefaultMomentumTrendParams()
	p := MomentumTrendParams{
		FastPeriod:       ps.Int("fast_period", d.FastPeriod),
		SlowPeriod:       ps.Int("slow_period", d.SlowPeriod),
		ADXPeriod:        ps.Int("adx_period", d.ADXPeriod),
		MinADX:           ps.Float("min_adx", d.MinADX),
		MomentumLookback: ps.Int("momentum_lookback", d.MomentumLookback),
		ATRPeriod:        ps.Int("atr_period", d.ATRPeriod),
		StopATR:          ps.Float("stop_atr", d.StopATR),
		TargetATR:        ps.Float("target_atr", d.TargetATR),
		AllowShort:       ps.Bool("allow_short", d.AllowShort),
	}

	switch {
	case p.FastPeriod <= 0 || p.SlowPeriod <= 0 || p.ADXPeriod <= 0 || p.ATRPeriod <= 0 || p.MomentumLookback <= 0:
		return nil, fmt.Errorf("%w: periods must be positive", ErrInvalidParams)
	case p.FastPeriod >= p.SlowPeriod:
		return nil, fmt.Errorf("%w: fast_period %d must be below slow_period %d", ErrInvalidParams, p.FastPeriod, p.SlowPeriod)
	case p.StopATR <= 0 || p.TargetATR <= 0:
		return nil, fmt.Errorf("%w: stop_atr and target_atr must be positive", ErrInvalidParams)
	case p.MinADX < 0:
		return nil, fmt.Errorf("%w: min_adx must not be negative", ErrInvalidParams)
	}
	return NewMomentumTrend(p), nil
}

// rsiReversionFromParams creates RSIReversion from params.
func rsiReversionFromParams(ps domain.ParameterSet) (*RSIReversion, error) {
	d := DefaultRSIReversionParams()
	p := RSIReversionParams{
		RSIPeriod:  ps.Int("rsi_period", d.RSIPeriod),
		Oversold:   ps.Float("oversold", d.Oversold),
		Overbought: ps.Float("overbought", d.Overbought),
		ATRPeriod:  ps.Int("atr_period", d.ATRPeriod),
		StopATR:    ps.Float("stop_atr", d.StopATR),
		TargetATR:  ps.Float("target_atr", d.TargetATR),
		MaxADX:     ps.Float("max_adx", d.MaxADX),
	}

	switch {
	case p.RSIPeriod <= 0 || p.ATRPeriod <= 0:
		return nil, fmt.Errorf("%w: periods must be positive", ErrInvalidParams)
	case p.Oversold <= 0 || p.Overbought >= 100 || p.Oversold >= p.Overbought:
		return nil, fmt.Errorf("%w: need 0 < oversold < overbought < 100", ErrInvalidParams)
	case p.StopATR <= 0 || p.TargetATR <= 0:
		return nil, fmt.Errorf("%w: stop_atr and target_atr must be positive", ErrInvalidParams)
	}
	return NewRSIReversion(p), nil
}

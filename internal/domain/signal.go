package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSignal is returned for malformed signals. The simulator drops them.
var ErrInvalidSignal = errors.New("invalid signal")

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Signal represents a proposed trade emitted by a strategy.
type Signal struct {
	Instrument  string
	Side        Side
	EntryPrice  float64
	StopLoss    float64
	TakeProfit  float64
	Strength    float64 // confidence, 0-1 or 0-100
	StrategyTag string
	Features    EntryFeatures // zero value when the strategy does not classify entries
}

// Validate checks that the signal can be handed to the ledger.
// Stop equal to entry passes here; the ledger rejects it as zero risk.
func (s Signal) Validate() error {
	if s.Instrument == "" {
		return fmt.Errorf("%w: missing instrument", ErrInvalidSignal)
	}
	if !s.Side.IsValid() {
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, s.Side)
	}
	prices := [...]struct {
		name  string
		value float64
	}{
		{"entry", s.EntryPrice},
		{"stop", s.StopLoss},
		{"target", s.TakeProfit},
	}
	for _, p := range prices {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) || p.value <= 0 {
			return fmt.Errorf("%w: %s price %v", ErrInvalidSignal, p.name, p.value)
		}
	}
	if math.IsNaN(s.Strength) || s.Strength < 0 || s.Strength > 100 {
		return fmt.Errorf("%w: strength %v", ErrInvalidSignal, s.Strength)
	}

	switch s.Side {
	case SideBuy:
		if s.StopLoss > s.EntryPrice || s.TakeProfit <= s.EntryPrice {
			return fmt.Errorf("%w: BUY needs stop <= entry < target", ErrInvalidSignal)
		}
	case SideSell:
		if s.StopLoss < s.EntryPrice || s.TakeProfit >= s.EntryPrice {
			return fmt.Errorf("%w: SELL needs target < entry <= stop", ErrInvalidSignal)
		}
	}
	return nil
}

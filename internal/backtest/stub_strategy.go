package backtest

import (
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/strategy"
)

// StubStrategy is a scripted strategy for testing.
// It records the timestamps it was called at and delegates signal
// generation to a function.
type StubStrategy struct {
	warmUp int
	fn     func(snap domain.MarketSnapshot, hist *history.View) ([]domain.Signal, error)
	calls  []int64
}

// NewStubStrategy creates a new stub strategy. A nil fn emits no signals.
func NewStubStrategy(warmUp int, fn func(domain.MarketSnapshot, *history.View) ([]domain.Signal, error)) *StubStrategy {
	return &StubStrategy{warmUp: warmUp, fn: fn}
}

// ID returns the strategy identifier.
func (s *StubStrategy) ID() string {
	return "stub"
}

// WarmUp returns the configured warm-up for every instrument.
func (s *StubStrategy) WarmUp(_ string) int {
	return s.warmUp
}

// OnTick records the call and delegates to fn.
func (s *StubStrategy) OnTick(snap domain.MarketSnapshot, hist *history.View) ([]domain.Signal, error) {
	s.calls = append(s.calls, snap.TimestampMs)
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(snap, hist)
}

// Calls returns the timestamps OnTick was called at.
func (s *StubStrategy) Calls() []int64 {
	return s.calls
}

// Ensure StubStrategy implements strategy.Strategy
var _ strategy.Strategy = (*StubStrategy)(nil)

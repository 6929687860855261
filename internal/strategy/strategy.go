package strategy

import (
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
)

// Strategy produces trading signals from market snapshots.
// Implementations must be pure functions of their inputs so that a
// backtest can be replayed exactly; they must not keep per-run state.
type Strategy interface {
	// ID returns strategy identifier (includes parameters).
	ID() string

	// WarmUp returns how many bars of history the strategy needs for an
	// instrument before it emits signals.
	WarmUp(instrument string) int

	// OnTick is called once per processed timestamp with the instruments
	// quoted at that timestamp and the history visible so far.
	// It may return no signals.
	OnTick(snap domain.MarketSnapshot, hist *history.View) ([]domain.Signal, error)
}

// Strategy type identifiers used by the factory.
const (
	TypeMomentumTrend = "MOMENTUM_TREND"
	TypeRSIReversion  = "RSI_REVERSION"
)

package compliance

import (
	"errors"
	"fmt"
)

// ErrInvalidLimits is returned by Limits.Validate.
var ErrInvalidLimits = errors.New("invalid compliance limits")

// Limits are the account-level rules of a run. Percent fields are in
// percent units (5.0 means 5%). A zero cap or target disables that rule.
type Limits struct {
	StartingBalance        float64
	RiskPerTradePct        float64 // of current balance
	MaxDailyLossPct        float64 // of starting balance
	MaxTotalDrawdownPct    float64 // from peak balance
	MaxConcurrentPositions int
	ProfitTargetPct        float64 // of starting balance
	ConsecutiveLossCap     int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		StartingBalance:        100000,
		RiskPerTradePct:        1.0,
		MaxDailyLossPct:        5.0,
		MaxTotalDrawdownPct:    10.0,
		MaxConcurrentPositions: 3,
		ProfitTargetPct:        10.0,
		ConsecutiveLossCap:     5,
	}
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	switch {
	case l.StartingBalance <= 0:
		return fmt.Errorf("%w: starting balance must be positive", ErrInvalidLimits)
	case l.RiskPerTradePct <= 0 || l.RiskPerTradePct > 100:
		return fmt.Errorf("%w: risk per trade must be in (0, 100]", ErrInvalidLimits)
	case l.MaxDailyLossPct < 0, l.MaxTotalDrawdownPct < 0, l.ProfitTargetPct < 0:
		return fmt.Errorf("%w: percentages must not be negative", ErrInvalidLimits)
	case l.MaxConcurrentPositions < 0, l.ConsecutiveLossCap < 0:
		return fmt.Errorf("%w: caps must not be negative", ErrInvalidLimits)
	}
	return nil
}

// HaltPolicy decides what happens to open positions once the run reaches
// a terminal compliance state.
type HaltPolicy string

const (
	// HaltLetResolve keeps resolving open positions against later bars.
	HaltLetResolve HaltPolicy = "let_resolve"
	// HaltForceClose closes open positions at the current bar.
	HaltForceClose HaltPolicy = "force_close"
)

// ParseHaltPolicy parses a policy name. Empty means HaltLetResolve.
func ParseHaltPolicy(s string) (HaltPolicy, error) {
	switch HaltPolicy(s) {
	case "", HaltLetResolve:
		return HaltLetResolve, nil
	case HaltForceClose:
		return HaltForceClose, nil
	}
	return "", fmt.Errorf("unknown halt policy %q", s)
}

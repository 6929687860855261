// Package compliance enforces prop-challenge style account rules on a
// simulated run.
package compliance

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

const dayMs = int64(24 * 60 * 60 * 1000)

// Decision is the outcome of ValidateTrade.
type Decision struct {
	Accepted bool
	Reason   string  // set when rejected
	Units    float64 // position size when accepted
}

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Tracker is the compliance state machine of one run:
// ACTIVE -> TARGET_REACHED | LIMIT_BREACHED. Both outcomes are terminal.
// Not safe for concurrent use.
type Tracker struct {
	limits          Limits
	state           domain.ComplianceState
	day             int64 // UTC day number, valid when started
	started         bool
	dayStartBalance float64
}

// NewTracker creates a tracker in the ACTIVE state.
func NewTracker(limits Limits) (*Tracker, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		limits: limits,
		state: domain.ComplianceState{
			StartingBalance: limits.StartingBalance,
			CurrentBalance:  limits.StartingBalance,
			PeakBalance:     limits.StartingBalance,
			Status:          domain.ComplianceActive,
		},
		dayStartBalance: limits.StartingBalance,
	}, nil
}

// State returns a snapshot of the compliance state.
func (t *Tracker) State() domain.ComplianceState {
	return t.state
}

// Status returns the current status.
func (t *Tracker) Status() domain.ComplianceStatus {
	return t.state.Status
}

// ValidateTrade decides whether a prospective trade may open and sizes it
// so that a stop-out loses RiskPerTradePct of the current balance.
func (t *Tracker) ValidateTrade(entry, stop, target float64, instrument string, openPositions int) Decision {
	if t.state.Status != domain.ComplianceActive {
		return reject("status %s", t.state.Status)
	}
	if limit := t.limits.MaxConcurrentPositions; limit > 0 && openPositions >= limit {
		return reject("%d open positions, max %d", openPositions, limit)
	}

	risk := math.Abs(entry - stop)
	if risk == 0 || math.IsNaN(risk) {
		return reject("%s: zero risk", instrument)
	}
	if target == entry {
		return reject("%s: zero reward", instrument)
	}

	riskAmount := t.limits.RiskPerTradePct / 100 * t.state.CurrentBalance
	if limit := t.limits.MaxDailyLossPct; limit > 0 {
		allowed := limit / 100 * t.state.StartingBalance
		if t.state.DailyLossUsed+riskAmount > allowed {
			return reject("%s: worst case %.2f would push daily loss past %.2f", instrument, t.state.DailyLossUsed+riskAmount, allowed)
		}
	}

	return Decision{Accepted: true, Units: riskAmount / risk}
}

// AdvanceTo rolls the trading day forward when ts falls on a later UTC
// date than the current one. Earlier timestamps are ignored.
func (t *Tracker) AdvanceTo(ts int64) {
	day := floorDiv(ts, dayMs)
	switch {
	case !t.started:
		t.started = true
		t.day = day
		t.state.TradingDayCount = 1
	case day > t.day:
		t.day = day
		t.state.TradingDayCount++
		t.state.DailyLossUsed = 0
		t.dayStartBalance = t.state.CurrentBalance
	}
}

// OnTradeClosed books a realized P&L and evaluates the rules.
// Breaches are checked before the profit target. Once terminal, the
// balance keeps updating but the status does not change.
func (t *Tracker) OnTradeClosed(pnl float64, isWin bool, closeTs int64) {
	t.AdvanceTo(closeTs)

	s := &t.state
	s.CurrentBalance += pnl
	if s.CurrentBalance > s.PeakBalance {
		s.PeakBalance = s.CurrentBalance
	}
	s.DailyLossUsed = math.Max(0, t.dayStartBalance-s.CurrentBalance)
	s.TotalDrawdownPct = 0
	if s.PeakBalance > 0 {
		s.TotalDrawdownPct = (s.PeakBalance - s.CurrentBalance) / s.PeakBalance * 100
	}
	if isWin {
		s.ConsecutiveLosses = 0
	} else {
		s.ConsecutiveLosses++
	}

	if s.Status.IsTerminal() {
		return
	}
	if reason := t.breach(); reason != "" {
		s.Status = domain.ComplianceLimitBreached
		s.BreachReason = reason
		return
	}
	if target := t.limits.ProfitTargetPct; target > 0 {
		gain := (s.CurrentBalance - s.StartingBalance) / s.StartingBalance * 100
		if gain >= target {
			s.Status = domain.ComplianceTargetReached
		}
	}
}

func (t *Tracker) breach() string {
	s := t.state
	if limit := t.limits.MaxDailyLossPct; limit > 0 {
		if allowed := limit / 100 * s.StartingBalance; s.DailyLossUsed >= allowed {
			return fmt.Sprintf("daily loss %.2f reached limit %.2f", s.DailyLossUsed, allowed)
		}
	}
	if limit := t.limits.MaxTotalDrawdownPct; limit > 0 && s.TotalDrawdownPct >= limit {
		return fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%", s.TotalDrawdownPct, limit)
	}
	if limit := t.limits.ConsecutiveLossCap; limit > 0 && s.ConsecutiveLosses > limit {
		return fmt.Sprintf("%d consecutive losses exceed cap %d", s.ConsecutiveLosses, limit)
	}
	return ""
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

package domain

// ComplianceStatus is the account-level pass/fail state of a run.
type ComplianceStatus string

const (
	ComplianceActive        ComplianceStatus = "ACTIVE"
	ComplianceTargetReached ComplianceStatus = "TARGET_REACHED"
	ComplianceLimitBreached ComplianceStatus = "LIMIT_BREACHED"
)

// String returns the string representation of ComplianceStatus.
func (s ComplianceStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s ComplianceStatus) IsTerminal() bool {
	return s == ComplianceTargetReached || s == ComplianceLimitBreached
}

// ComplianceState is the bookkeeping kept by the risk tracker for one run.
type ComplianceState struct {
	StartingBalance   float64          `json:"starting_balance"`
	CurrentBalance    float64          `json:"current_balance"`
	PeakBalance       float64          `json:"peak_balance"`
	DailyLossUsed     float64          `json:"daily_loss_used"`    // account currency lost since the day started
	TotalDrawdownPct  float64          `json:"total_drawdown_pct"` // from running peak balance
	ConsecutiveLosses int              `json:"consecutive_losses"`
	TradingDayCount   int              `json:"trading_day_count"`
	Status            ComplianceStatus `json:"status"`
	BreachReason      string           `json:"breach_reason,omitempty"`
}

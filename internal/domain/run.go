package domain

// RunResult is the outcome of one simulated run.
// Corresponds to run_results table in PostgreSQL.
type RunResult struct {
	RunID  string       `json:"run_id"`
	Params ParameterSet `json:"params"`

	// Performance
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"` // percent, 0-100
	ProfitFactor   float64 `json:"profit_factor"`
	TotalProfit    float64 `json:"total_profit"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	FitnessScore   float64 `json:"fitness_score"`

	// Account
	FinalBalance float64         `json:"final_balance"`
	Compliance   ComplianceState `json:"compliance"`

	// Diagnostics
	TicksProcessed  int `json:"ticks_processed"`
	StrategyErrors  int `json:"strategy_errors"`  // ticks where the strategy failed
	InvalidSignals  int `json:"invalid_signals"`  // dropped before reaching the ledger
	IgnoredSignals  int `json:"ignored_signals"`  // instrument already had an open position
	RejectedSignals int `json:"rejected_signals"` // vetoed by the compliance tracker

	// Detail, may be stripped in large sweeps
	Trades []ClosedTrade `json:"trades,omitempty"`
	Equity []EquityPoint `json:"equity,omitempty"`

	// Error is set when the run failed. Failed runs score 0.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the run aborted.
func (r RunResult) Failed() bool {
	return r.Error != ""
}

package reporting

import "time"

// Report represents a sweep report.
type Report struct {
	// Metadata
	GeneratedAt time.Time `json:"generated_at"`
	SweepID     string    `json:"sweep_id"`

	// Sweep summary
	Summary SweepSummary `json:"summary"`

	// Ranked results (fitness DESC, param index ASC), cut to top N
	Results []ResultRow `json:"results"`

	// Best run detail
	BestTrades   []TradeRow   `json:"best_trades,omitempty"`
	BestPatterns []PatternRow `json:"best_patterns,omitempty"`
}

// SweepSummary describes the sweep as a whole.
type SweepSummary struct {
	RunsTotal     int     `json:"runs_total"`
	RunsFailed    int     `json:"runs_failed"`
	RunsBreached  int     `json:"runs_breached"` // ended LIMIT_BREACHED
	RunsOnTarget  int     `json:"runs_on_target"`
	BestFitness   float64 `json:"best_fitness"`
	MedianFitness float64 `json:"median_fitness"`
}

// ResultRow represents one ranked run. Tags name the CSV columns.
type ResultRow struct {
	Rank           int     `csv:"rank" json:"rank"`
	RunID          string  `csv:"run_id" json:"run_id"`
	ParamIndex     int     `csv:"param_index" json:"param_index"`
	Params         string  `csv:"params" json:"params"`
	FitnessScore   float64 `csv:"fitness_score" json:"fitness_score"`
	TotalTrades    int     `csv:"total_trades" json:"total_trades"`
	WinRate        float64 `csv:"win_rate" json:"win_rate"`
	ProfitFactor   float64 `csv:"profit_factor" json:"profit_factor"`
	TotalProfit    float64 `csv:"total_profit" json:"total_profit"`
	MaxDrawdownPct float64 `csv:"max_drawdown_pct" json:"max_drawdown_pct"`
	FinalBalance   float64 `csv:"final_balance" json:"final_balance"`
	Compliance     string  `csv:"compliance" json:"compliance"`
	Error          string  `csv:"error" json:"error,omitempty"`
}

// TradeRow represents one closed trade. Tags name the CSV columns.
type TradeRow struct {
	TradeID      string  `csv:"trade_id" json:"trade_id"`
	Instrument   string  `csv:"instrument" json:"instrument"`
	Side         string  `csv:"side" json:"side"`
	EntryTime    string  `csv:"entry_time" json:"entry_time"` // RFC3339, UTC
	EntryPrice   float64 `csv:"entry_price" json:"entry_price"`
	StopLoss     float64 `csv:"stop_loss" json:"stop_loss"`
	TakeProfit   float64 `csv:"take_profit" json:"take_profit"`
	Size         float64 `csv:"size" json:"size"`
	ExitTime     string  `csv:"exit_time" json:"exit_time"`
	ExitPrice    float64 `csv:"exit_price" json:"exit_price"`
	ExitReason   string  `csv:"exit_reason" json:"exit_reason"`
	RealizedPnL  float64 `csv:"realized_pnl" json:"realized_pnl"`
	PnLPips      float64 `csv:"pnl_pips" json:"pnl_pips"`
	RSIBucket    string  `csv:"rsi_bucket" json:"rsi_bucket"`
	MomentumSign int     `csv:"momentum_sign" json:"momentum_sign"`
	TrendBucket  string  `csv:"trend_bucket" json:"trend_bucket"`
}

// PatternRow aggregates trades sharing entry features.
type PatternRow struct {
	RSIBucket    string  `csv:"rsi_bucket" json:"rsi_bucket"`
	MomentumSign int     `csv:"momentum_sign" json:"momentum_sign"`
	TrendBucket  string  `csv:"trend_bucket" json:"trend_bucket"`
	Trades       int     `csv:"trades" json:"trades"`
	Wins         int     `csv:"wins" json:"wins"`
	Losses       int     `csv:"losses" json:"losses"`
	WinRate      float64 `csv:"win_rate" json:"win_rate"`
	TotalProfit  float64 `csv:"total_profit" json:"total_profit"`
}

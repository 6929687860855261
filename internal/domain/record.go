package domain

// Record returns the trade as a flat map keyed by column name, so callers
// can serialize it to any format.
func (t ClosedTrade) Record() map[string]any {
	return map[string]any{
		"trade_id":      t.TradeID,
		"instrument":    t.Instrument,
		"side":          string(t.Side),
		"entry_price":   t.EntryPrice,
		"stop_loss":     t.StopLoss,
		"take_profit":   t.TakeProfit,
		"size":          t.Size,
		"entry_time_ms": t.EntryTimeMs,
		"exit_price":    t.ExitPrice,
		"exit_time_ms":  t.ExitTimeMs,
		"realized_pnl":  t.RealizedPnL,
		"pnl_pips":      t.PnLPips,
		"exit_reason":   string(t.ExitReason),
		"strategy_tag":  t.StrategyTag,
		"rsi_bucket":    string(t.Features.RSI),
		"momentum_sign": int(t.Features.Momentum),
		"trend_bucket":  string(t.Features.Trend),
	}
}

// Record returns the run summary as a flat map keyed by column name.
// Parameters are nested under "params"; trades and equity are left out.
func (r RunResult) Record() map[string]any {
	return map[string]any{
		"run_id":           r.RunID,
		"param_index":      r.Params.Index,
		"params":           r.Params.Map(),
		"total_trades":     r.TotalTrades,
		"wins":             r.Wins,
		"losses":           r.Losses,
		"win_rate":         r.WinRate,
		"profit_factor":    r.ProfitFactor,
		"total_profit":     r.TotalProfit,
		"max_drawdown_pct": r.MaxDrawdownPct,
		"fitness_score":    r.FitnessScore,
		"final_balance":    r.FinalBalance,
		"compliance":       string(r.Compliance.Status),
		"ticks_processed":  r.TicksProcessed,
		"strategy_errors":  r.StrategyErrors,
		"invalid_signals":  r.InvalidSignals,
		"ignored_signals":  r.IgnoredSignals,
		"rejected_signals": r.RejectedSignals,
		"error":            r.Error,
	}
}

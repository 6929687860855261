package domain

// Position represents a simulated open trade awaiting exit.
type Position struct {
	Instrument    string        `json:"instrument"`
	Side          Side          `json:"side"`
	EntryPrice    float64       `json:"entry_price"`
	StopLoss      float64       `json:"stop_loss"`
	TakeProfit    float64       `json:"take_profit"`
	Size          float64       `json:"size"` // units
	EntryTimeMs   int64         `json:"entry_time_ms"`
	StrategyTag   string        `json:"strategy_tag"`
	Features      EntryFeatures `json:"features"`
	BarsHeld      int           `json:"bars_held"`      // bars processed on this instrument since entry
	UnrealizedPnL float64       `json:"unrealized_pnl"` // as of the last mark to market
}

// PnLAt returns the P&L in account currency if the position exited at price.
// BUY: (exit - entry) * size. SELL: (entry - exit) * size.
func (p Position) PnLAt(exit float64) float64 {
	if p.Side == SideSell {
		return (p.EntryPrice - exit) * p.Size
	}
	return (exit - p.EntryPrice) * p.Size
}

// ExitReason is the reason a position was closed.
type ExitReason string

// Exit reason codes
const (
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonTimeLimit  ExitReason = "TIME_LIMIT"
	ExitReasonEndOfData  ExitReason = "END_OF_DATA"

	// ExitReasonHalted only occurs under compliance.HaltForceClose: positions
	// still open when the account reaches a terminal compliance state are
	// closed at that tick. With the default let-resolve policy every trade
	// carries one of the four reasons above.
	ExitReasonHalted ExitReason = "HALTED"
)

// ClosedTrade represents a resolved position with realized P&L.
// Corresponds to closed_trades table in PostgreSQL.
type ClosedTrade struct {
	TradeID string `json:"trade_id"` // deterministic hash
	Position
	ExitPrice   float64    `json:"exit_price"`
	ExitTimeMs  int64      `json:"exit_time_ms"`
	RealizedPnL float64    `json:"realized_pnl"` // account currency
	PnLPips     float64    `json:"pnl_pips"`     // per unit, reporting only
	ExitReason  ExitReason `json:"exit_reason"`
}

// IsWin reports whether the trade made money. Breakeven counts as a loss.
func (t ClosedTrade) IsWin() bool {
	return t.RealizedPnL > 0
}

// HoldDurationMs returns the time between entry and exit.
func (t ClosedTrade) HoldDurationMs() int64 {
	return t.ExitTimeMs - t.EntryTimeMs
}

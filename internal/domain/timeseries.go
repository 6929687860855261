package domain

// Candle represents one OHLCV price bar for an instrument.
// Corresponds to candles table in ClickHouse.
type Candle struct {
	Instrument  string  `json:"instrument"`   // instrument symbol, e.g. EUR_USD
	TimestampMs int64   `json:"timestamp_ms"` // bar open time, Unix milliseconds
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`     // mid close
	BidClose    float64 `json:"bid_close"` // 0 when the feed has no bid side
	AskClose    float64 `json:"ask_close"` // 0 when the feed has no ask side
	Volume      float64 `json:"volume"`    // may be 0
}

// Bid returns the bid close, falling back to the mid close.
func (c Candle) Bid() float64 {
	if c.BidClose > 0 {
		return c.BidClose
	}
	return c.Close
}

// Ask returns the ask close, falling back to the mid close.
func (c Candle) Ask() float64 {
	if c.AskClose > 0 {
		return c.AskClose
	}
	return c.Close
}

// EquityPoint is one sample of the account equity curve.
type EquityPoint struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Balance     float64 `json:"balance"`      // realized balance
	Equity      float64 `json:"equity"`       // balance + unrealized P&L of open positions
	DrawdownPct float64 `json:"drawdown_pct"` // decline from running peak equity, percent
}

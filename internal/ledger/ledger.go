// Package ledger tracks open and closed simulated positions.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/idhash"
)

var (
	// ErrPositionExists is returned when the instrument already has an open position.
	ErrPositionExists = errors.New("position already open")

	// ErrInvalidSize is returned for a non-positive or non-finite size.
	ErrInvalidSize = errors.New("invalid position size")

	// ErrZeroRisk is returned when the stop equals the entry price.
	ErrZeroRisk = errors.New("stop loss equals entry price")

	// ErrNoPosition is returned when the instrument has no open position.
	ErrNoPosition = errors.New("no open position")
)

type openPosition struct {
	pos domain.Position
	seq int // open ordinal within the ledger, feeds the trade id
}

// Ledger holds at most one open position per instrument and the
// append-only list of closed trades. It is owned by a single run and is
// not safe for concurrent use.
type Ledger struct {
	runKey string
	open   map[string]*openPosition
	closed []domain.ClosedTrade
	opened int
}

// New creates an empty ledger. runKey scopes the generated trade ids.
func New(runKey string) *Ledger {
	return &Ledger{
		runKey: runKey,
		open:   make(map[string]*openPosition),
	}
}

// Open creates a position from an accepted signal.
func (l *Ledger) Open(sig domain.Signal, size float64, entryTimeMs int64) (domain.Position, error) {
	if _, ok := l.open[sig.Instrument]; ok {
		return domain.Position{}, fmt.Errorf("%s: %w", sig.Instrument, ErrPositionExists)
	}
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return domain.Position{}, fmt.Errorf("%s: size %v: %w", sig.Instrument, size, ErrInvalidSize)
	}
	if sig.StopLoss == sig.EntryPrice {
		return domain.Position{}, fmt.Errorf("%s: %w", sig.Instrument, ErrZeroRisk)
	}

	pos := domain.Position{
		Instrument:  sig.Instrument,
		Side:        sig.Side,
		EntryPrice:  sig.EntryPrice,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TakeProfit,
		Size:        size,
		EntryTimeMs: entryTimeMs,
		StrategyTag: sig.StrategyTag,
		Features:    sig.Features,
	}
	l.open[sig.Instrument] = &openPosition{pos: pos, seq: l.opened}
	l.opened++
	return pos, nil
}

// Has reports whether the instrument has an open position.
func (l *Ledger) Has(instrument string) bool {
	_, ok := l.open[instrument]
	return ok
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	return len(l.open)
}

// Positions returns the open positions sorted by instrument.
func (l *Ledger) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(l.open))
	for _, inst := range l.openInstruments() {
		out = append(out, l.open[inst].pos)
	}
	return out
}

// Closed returns a copy of the closed trades in close order.
func (l *Ledger) Closed() []domain.ClosedTrade {
	out := make([]domain.ClosedTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// MarkToMarket refreshes unrealized P&L for positions quoted in snap and
// returns the total unrealized P&L across all open positions. Positions
// missing from snap keep their last mark.
func (l *Ledger) MarkToMarket(snap domain.MarketSnapshot) float64 {
	var total float64
	for _, inst := range l.openInstruments() {
		op := l.open[inst]
		if q, ok := snap.Quote(inst); ok {
			op.pos.UnrealizedPnL = op.pos.PnLAt(q.ExitPrice(op.pos.Side))
		}
		total += op.pos.UnrealizedPnL
	}
	return total
}

// TryClose checks the instrument's open position against its bar in snap.
// Every call with a quoted bar counts toward BarsHeld.
//
// Stop-loss has priority: when one bar touches both the stop and the
// target, the trade closes at the stop. A stop fills at the stop level,
// or at the bar open when the bar gapped through it. A target fills at
// the target level.
func (l *Ledger) TryClose(instrument string, snap domain.MarketSnapshot) (domain.ClosedTrade, bool) {
	op, ok := l.open[instrument]
	if !ok {
		return domain.ClosedTrade{}, false
	}
	q, ok := snap.Quote(instrument)
	if !ok {
		return domain.ClosedTrade{}, false
	}
	op.pos.BarsHeld++

	bar := q.Bar
	p := op.pos
	switch p.Side {
	case domain.SideBuy:
		if bar.Low <= p.StopLoss {
			return l.close(instrument, math.Min(bar.Open, p.StopLoss), snap.TimestampMs, domain.ExitReasonStopLoss), true
		}
		if bar.High >= p.TakeProfit {
			return l.close(instrument, p.TakeProfit, snap.TimestampMs, domain.ExitReasonTakeProfit), true
		}
	case domain.SideSell:
		if bar.High >= p.StopLoss {
			return l.close(instrument, math.Max(bar.Open, p.StopLoss), snap.TimestampMs, domain.ExitReasonStopLoss), true
		}
		if bar.Low <= p.TakeProfit {
			return l.close(instrument, p.TakeProfit, snap.TimestampMs, domain.ExitReasonTakeProfit), true
		}
	}
	return domain.ClosedTrade{}, false
}

// TryTimeExit closes the position at the side-appropriate price once it
// has been held for maxBars bars. maxBars <= 0 disables the exit.
func (l *Ledger) TryTimeExit(instrument string, snap domain.MarketSnapshot, maxBars int) (domain.ClosedTrade, bool) {
	if maxBars <= 0 {
		return domain.ClosedTrade{}, false
	}
	op, ok := l.open[instrument]
	if !ok || op.pos.BarsHeld < maxBars {
		return domain.ClosedTrade{}, false
	}
	q, ok := snap.Quote(instrument)
	if !ok {
		return domain.ClosedTrade{}, false
	}
	return l.close(instrument, q.ExitPrice(op.pos.Side), snap.TimestampMs, domain.ExitReasonTimeLimit), true
}

// ForceCloseAll closes every open position at its instrument's last
// available quote, in instrument order. Positions without a quote close
// at their entry price.
func (l *Ledger) ForceCloseAll(reason domain.ExitReason, lastQuotes map[string]domain.Quote) []domain.ClosedTrade {
	var out []domain.ClosedTrade
	for _, inst := range l.openInstruments() {
		p := l.open[inst].pos
		exit, ts := p.EntryPrice, p.EntryTimeMs
		if q, ok := lastQuotes[inst]; ok {
			exit, ts = q.ExitPrice(p.Side), q.Bar.TimestampMs
		}
		out = append(out, l.close(inst, exit, ts, reason))
	}
	return out
}

func (l *Ledger) close(instrument string, exitPrice float64, exitTimeMs int64, reason domain.ExitReason) domain.ClosedTrade {
	op := l.open[instrument]
	delete(l.open, instrument)

	p := op.pos
	p.UnrealizedPnL = 0
	trade := domain.ClosedTrade{
		TradeID:     idhash.ComputeTradeID(l.runKey, instrument, p.EntryTimeMs, op.seq),
		Position:    p,
		ExitPrice:   exitPrice,
		ExitTimeMs:  exitTimeMs,
		RealizedPnL: PnL(p.Side, p.EntryPrice, exitPrice, p.Size),
		PnLPips:     Pips(instrument, p.Side, p.EntryPrice, exitPrice),
		ExitReason:  reason,
	}
	l.closed = append(l.closed, trade)
	return trade
}

func (l *Ledger) openInstruments() []string {
	out := make([]string, 0, len(l.open))
	for inst := range l.open {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

// PnL returns realized P&L in account currency.
// BUY: (exit - entry) * size. SELL: (entry - exit) * size.
func PnL(side domain.Side, entry, exit, size float64) float64 {
	return (exit - entry) * side.Sign() * size
}

// PipMultiplier returns the price-to-pip factor for an instrument:
// 10 for metals, 100 for JPY-quoted pairs, 10000 otherwise.
func PipMultiplier(instrument string) float64 {
	inst := strings.ToUpper(instrument)
	switch {
	case strings.Contains(inst, "XAU"), strings.Contains(inst, "XAG"):
		return 10
	case strings.Contains(inst, "JPY"):
		return 100
	default:
		return 10000
	}
}

// Pips returns per-unit P&L in pips. Reporting only.
func Pips(instrument string, side domain.Side, entry, exit float64) float64 {
	return (exit - entry) * side.Sign() * PipMultiplier(instrument)
}

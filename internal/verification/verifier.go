// Package verification re-executes persisted runs and checks that the
// replayed trades and statistics match what was stored.
package verification

import (
	"context"
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"` // stored value
	Actual   any    `json:"actual"`   // replayed value
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID          string            `json:"run_id"`
	Match          bool              `json:"match"`
	Divergences    []FieldDivergence `json:"divergences,omitempty"`
	StoredTrades   int               `json:"stored_trades"`
	ReplayedTrades int               `json:"replayed_trades"`
	StoredProfit   float64           `json:"stored_profit"`
	ReplayedProfit float64           `json:"replayed_profit"`
}

// VerificationReport contains results for a whole sweep.
type VerificationReport struct {
	SweepID       string               `json:"sweep_id"`
	TotalRuns     int                  `json:"total_runs"`
	MatchedRuns   int                  `json:"matched_runs"`
	DivergentRuns int                  `json:"divergent_runs"`
	Results       []VerificationResult `json:"results"`
}

// Verifier replays stored runs.
type Verifier interface {
	// VerifyRun re-executes one stored run with its parameters and compares
	// the statistics and every closed trade.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifySweep verifies every run stored under a sweep.
	VerifySweep(ctx context.Context, sweepID string) (*VerificationReport, error)
}

// divergences collects mismatches field by field.
type divergences []FieldDivergence

func (d *divergences) exact(field string, stored, replayed any) {
	if stored != replayed {
		*d = append(*d, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
}

func (d *divergences) float(field string, stored, replayed float64) {
	if !floatEquals(stored, replayed) {
		*d = append(*d, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
}

// CompareRunResults compares the persisted statistics of two runs.
// Trades, equity and fitness are not compared: fitness depends on the
// scorer, and trades are compared with CompareTrades.
func CompareRunResults(stored, replayed *domain.RunResult) []FieldDivergence {
	var d divergences

	d.exact("RunID", stored.RunID, replayed.RunID)
	d.exact("TotalTrades", stored.TotalTrades, replayed.TotalTrades)
	d.exact("Wins", stored.Wins, replayed.Wins)
	d.exact("Losses", stored.Losses, replayed.Losses)
	d.float("WinRate", stored.WinRate, replayed.WinRate)
	d.float("ProfitFactor", stored.ProfitFactor, replayed.ProfitFactor)
	d.float("TotalProfit", stored.TotalProfit, replayed.TotalProfit)
	d.float("MaxDrawdownPct", stored.MaxDrawdownPct, replayed.MaxDrawdownPct)
	d.float("FinalBalance", stored.FinalBalance, replayed.FinalBalance)
	d.exact("Compliance.Status", stored.Compliance.Status, replayed.Compliance.Status)
	d.exact("TicksProcessed", stored.TicksProcessed, replayed.TicksProcessed)

	return d
}

// CompareTrades compares two closed trades.
func CompareTrades(stored, replayed *domain.ClosedTrade) []FieldDivergence {
	var d divergences

	d.exact("TradeID", stored.TradeID, replayed.TradeID)
	d.exact("Instrument", stored.Instrument, replayed.Instrument)
	d.exact("Side", stored.Side, replayed.Side)
	d.exact("EntryTimeMs", stored.EntryTimeMs, replayed.EntryTimeMs)
	d.float("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	d.float("StopLoss", stored.StopLoss, replayed.StopLoss)
	d.float("TakeProfit", stored.TakeProfit, replayed.TakeProfit)
	d.float("Size", stored.Size, replayed.Size)
	d.exact("ExitTimeMs", stored.ExitTimeMs, replayed.ExitTimeMs)
	d.float("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	d.exact("ExitReason", stored.ExitReason, replayed.ExitReason)
	d.float("RealizedPnL", stored.RealizedPnL, replayed.RealizedPnL)

	return d
}

// CompareTradeLists compares trades pairwise in close order. Field names
// are prefixed with the trade index; a count mismatch is reported once.
func CompareTradeLists(stored, replayed []*domain.ClosedTrade) []FieldDivergence {
	var out []FieldDivergence
	if len(stored) != len(replayed) {
		out = append(out, FieldDivergence{Field: "TradeCount", Expected: len(stored), Actual: len(replayed)})
	}
	for i := 0; i < min(len(stored), len(replayed)); i++ {
		for _, div := range CompareTrades(stored[i], replayed[i]) {
			div.Field = fmt.Sprintf("Trades[%d].%s", i, div.Field)
			out = append(out, div)
		}
	}
	return out
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

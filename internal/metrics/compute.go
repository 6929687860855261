package metrics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"strategy-lab/internal/domain"
)

// MaxProfitFactor caps the profit factor of runs without losing trades.
const MaxProfitFactor = 999.0

// Summary holds per-run trade statistics.
type Summary struct {
	// Counts
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // percent, 0-100

	// P&L, account currency
	GrossProfit  float64
	GrossLoss    float64 // positive number
	TotalProfit  float64
	ProfitFactor float64
	AverageWin   float64
	AverageLoss  float64 // positive number
	Expectancy   float64 // mean P&L per trade
	TotalPips    float64

	// Outcome distribution of realized P&L
	OutcomeMedian float64
	OutcomeP10    float64
	OutcomeP90    float64
	OutcomeMin    float64
	OutcomeMax    float64
	OutcomeStddev float64

	// Order-dependent, uses close order
	MaxDrawdown          float64 // worst peak-to-trough of cumulative P&L
	MaxConsecutiveLosses int
}

// Summarize computes statistics over trades in close order.
// TotalProfit is summed in that order so it reproduces the ledger exactly.
func Summarize(trades []domain.ClosedTrade) Summary {
	n := len(trades)
	if n == 0 {
		return Summary{}
	}

	var s Summary
	s.TotalTrades = n

	outcomes := make([]float64, n)
	for i, t := range trades {
		pnl := t.RealizedPnL
		outcomes[i] = pnl
		s.TotalProfit += pnl
		s.TotalPips += t.PnLPips
		if t.IsWin() {
			s.Wins++
			s.GrossProfit += pnl
		} else {
			s.Losses++
			s.GrossLoss -= pnl
		}
	}

	s.WinRate = computeWinRate(s.Wins, n)
	s.ProfitFactor = computeProfitFactor(s.GrossProfit, s.GrossLoss)
	if s.Wins > 0 {
		s.AverageWin = s.GrossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AverageLoss = s.GrossLoss / float64(s.Losses)
	}

	s.Expectancy, _ = stats.Mean(outcomes)
	s.OutcomeMedian, _ = stats.Median(outcomes)
	if n > 1 {
		s.OutcomeStddev, _ = stats.StandardDeviationSample(outcomes)
	}

	sorted := make([]float64, n)
	copy(sorted, outcomes)
	sort.Float64s(sorted)
	s.OutcomeP10 = computePercentile(sorted, 0.10)
	s.OutcomeP90 = computePercentile(sorted, 0.90)
	s.OutcomeMin = sorted[0]
	s.OutcomeMax = sorted[n-1]

	s.MaxDrawdown = computeMaxDrawdown(outcomes)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(trades)
	return s
}

// Apply copies the headline numbers into a RunResult.
func (s Summary) Apply(r *domain.RunResult) {
	r.TotalTrades = s.TotalTrades
	r.Wins = s.Wins
	r.Losses = s.Losses
	r.WinRate = s.WinRate
	r.ProfitFactor = s.ProfitFactor
	r.TotalProfit = s.TotalProfit
}

// computeWinRate calculates win rate as a percentage.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// computeProfitFactor returns gross profit / gross loss, capped at
// MaxProfitFactor. No losses and some profit gives the cap.
func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return MaxProfitFactor
		}
		return 0
	}
	return math.Min(grossProfit/grossLoss, MaxProfitFactor)
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative outcomes.
// Outcomes must be in chronological order.
func computeMaxDrawdown(outcomes []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, o := range outcomes {
		cumulative += o
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of non-winning trades.
// Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []domain.ClosedTrade) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range trades {
		if !t.IsWin() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

// MaxDrawdownPct returns the largest decline from running peak equity,
// in percent, over an equity curve.
func MaxDrawdownPct(equity []domain.EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

package optimizer

import (
	"math"

	"strategy-lab/internal/domain"
)

// DefaultTargetTrades is the trade count the default scorer rewards most.
const DefaultTargetTrades = 20

// Scorer maps a finished run to a fitness score. Higher is better.
type Scorer func(r *domain.RunResult) float64

// DefaultScorer weights win rate, profit factor and closeness of the trade
// count to targetTrades:
//
//	0.5*min(win_rate/100, 1) + 0.3*clamp(profit_factor/3, 0, 1) + 0.2*closeness
//
// where closeness = max(0, 1 - |trades - target| / target). Failed runs score 0.
func DefaultScorer(targetTrades int) Scorer {
	if targetTrades <= 0 {
		targetTrades = DefaultTargetTrades
	}
	target := float64(targetTrades)

	return func(r *domain.RunResult) float64 {
		if r.Failed() {
			return 0
		}
		winRate := math.Min(r.WinRate/100, 1)
		profitFactor := clamp(r.ProfitFactor/3, 0, 1)
		closeness := math.Max(0, 1-math.Abs(float64(r.TotalTrades)-target)/target)
		return 0.5*winRate + 0.3*profitFactor + 0.2*closeness
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

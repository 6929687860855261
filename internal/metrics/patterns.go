package metrics

import (
	"sort"

	"strategy-lab/internal/domain"
)

// PatternStats aggregates trades sharing the same entry features.
type PatternStats struct {
	Features    domain.EntryFeatures
	Trades      int
	Wins        int
	Losses      int
	WinRate     float64 // percent
	TotalProfit float64
}

// GroupByFeatures buckets trades by their EntryFeatures.
// Results are ordered by trade count descending, then by features.
func GroupByFeatures(trades []domain.ClosedTrade) []PatternStats {
	buckets := make(map[domain.EntryFeatures]*PatternStats)
	for _, t := range trades {
		b, ok := buckets[t.Features]
		if !ok {
			b = &PatternStats{Features: t.Features}
			buckets[t.Features] = b
		}
		b.Trades++
		b.TotalProfit += t.RealizedPnL
		if t.IsWin() {
			b.Wins++
		} else {
			b.Losses++
		}
	}

	out := make([]PatternStats, 0, len(buckets))
	for _, b := range buckets {
		b.WinRate = computeWinRate(b.Wins, b.Trades)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trades != out[j].Trades {
			return out[i].Trades > out[j].Trades
		}
		return featuresLess(out[i].Features, out[j].Features)
	})
	return out
}

func featuresLess(a, b domain.EntryFeatures) bool {
	if a.RSI != b.RSI {
		return a.RSI < b.RSI
	}
	if a.Momentum != b.Momentum {
		return a.Momentum < b.Momentum
	}
	return a.Trend < b.Trend
}

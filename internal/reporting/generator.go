package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/montanaflynn/stats"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/metrics"
	"strategy-lab/internal/storage"
)

// ErrNoResults is returned when a sweep has no stored results.
var ErrNoResults = errors.New("no results for sweep")

// Generator produces reports from stored or in-memory sweep results.
type Generator struct {
	runResultStore   storage.RunResultStore
	closedTradeStore storage.ClosedTradeStore // optional
	now              func() time.Time         // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. Either store may be nil
// when only FromResults is used.
func NewGenerator(resultStore storage.RunResultStore, tradeStore storage.ClosedTradeStore) *Generator {
	return &Generator{
		runResultStore:   resultStore,
		closedTradeStore: tradeStore,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report of a persisted sweep.
// The best run's trades are loaded when a trade store is configured.
func (g *Generator) Generate(ctx context.Context, sweepID string, topN int) (*Report, error) {
	if g.runResultStore == nil {
		return nil, storage.ErrInvalidInput
	}
	ranked, err := g.runResultStore.GetBySweep(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, ErrNoResults
	}

	var bestTrades []domain.ClosedTrade
	if g.closedTradeStore != nil && !ranked[0].Failed() {
		stored, err := g.closedTradeStore.GetByRun(ctx, ranked[0].RunID)
		if err != nil {
			return nil, err
		}
		bestTrades = make([]domain.ClosedTrade, len(stored))
		for i, t := range stored {
			bestTrades[i] = *t
		}
	}

	return g.build(sweepID, ranked, bestTrades, topN), nil
}

// FromResults builds a report from ranked in-memory results. The best
// run's trades are taken from its RunResult.
func (g *Generator) FromResults(sweepID string, ranked []*domain.RunResult, topN int) *Report {
	var bestTrades []domain.ClosedTrade
	if len(ranked) > 0 {
		bestTrades = ranked[0].Trades
	}
	return g.build(sweepID, ranked, bestTrades, topN)
}

func (g *Generator) build(sweepID string, ranked []*domain.RunResult, bestTrades []domain.ClosedTrade, topN int) *Report {
	top := ranked
	if topN > 0 && topN < len(ranked) {
		top = ranked[:topN]
	}

	return &Report{
		GeneratedAt:  g.now(),
		SweepID:      sweepID,
		Summary:      summarize(ranked),
		Results:      ToResultRows(top),
		BestTrades:   ToTradeRows(bestTrades),
		BestPatterns: ToPatternRows(metrics.GroupByFeatures(bestTrades)),
	}
}

// summarize computes the sweep summary over all results.
func summarize(ranked []*domain.RunResult) SweepSummary {
	s := SweepSummary{RunsTotal: len(ranked)}
	if len(ranked) == 0 {
		return s
	}

	fitness := make([]float64, len(ranked))
	for i, r := range ranked {
		fitness[i] = r.FitnessScore
		switch {
		case r.Failed():
			s.RunsFailed++
		case r.Compliance.Status == domain.ComplianceLimitBreached:
			s.RunsBreached++
		case r.Compliance.Status == domain.ComplianceTargetReached:
			s.RunsOnTarget++
		}
		if r.FitnessScore > s.BestFitness {
			s.BestFitness = r.FitnessScore
		}
	}
	s.MedianFitness, _ = stats.Median(fitness)
	return s
}

// ToResultRows converts ranked results to rows, ranks starting at 1.
func ToResultRows(ranked []*domain.RunResult) []ResultRow {
	rows := make([]ResultRow, len(ranked))
	for i, r := range ranked {
		rows[i] = ResultRow{
			Rank:           i + 1,
			RunID:          r.RunID,
			ParamIndex:     r.Params.Index,
			Params:         r.Params.Key(),
			FitnessScore:   r.FitnessScore,
			TotalTrades:    r.TotalTrades,
			WinRate:        r.WinRate,
			ProfitFactor:   r.ProfitFactor,
			TotalProfit:    r.TotalProfit,
			MaxDrawdownPct: r.MaxDrawdownPct,
			FinalBalance:   r.FinalBalance,
			Compliance:     string(r.Compliance.Status),
			Error:          r.Error,
		}
	}
	return rows
}

// ToTradeRows converts trades to rows, keeping close order.
func ToTradeRows(trades []domain.ClosedTrade) []TradeRow {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			TradeID:      t.TradeID,
			Instrument:   t.Instrument,
			Side:         string(t.Side),
			EntryTime:    formatMs(t.EntryTimeMs),
			EntryPrice:   t.EntryPrice,
			StopLoss:     t.StopLoss,
			TakeProfit:   t.TakeProfit,
			Size:         t.Size,
			ExitTime:     formatMs(t.ExitTimeMs),
			ExitPrice:    t.ExitPrice,
			ExitReason:   string(t.ExitReason),
			RealizedPnL:  t.RealizedPnL,
			PnLPips:      t.PnLPips,
			RSIBucket:    string(t.Features.RSI),
			MomentumSign: int(t.Features.Momentum),
			TrendBucket:  string(t.Features.Trend),
		}
	}
	return rows
}

// ToPatternRows converts pattern statistics to rows.
func ToPatternRows(patterns []metrics.PatternStats) []PatternRow {
	rows := make([]PatternRow, len(patterns))
	for i, p := range patterns {
		rows[i] = PatternRow{
			RSIBucket:    string(p.Features.RSI),
			MomentumSign: int(p.Features.Momentum),
			TrendBucket:  string(p.Features.Trend),
			Trades:       p.Trades,
			Wins:         p.Wins,
			Losses:       p.Losses,
			WinRate:      p.WinRate,
			TotalProfit:  p.TotalProfit,
		}
	}
	return rows
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

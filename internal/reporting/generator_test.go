package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage/memory"
)

var fixedClock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func testResults() []*domain.RunResult {
	return []*domain.RunResult{
		{
			RunID:        "r-a",
			Params:       domain.NewParameterSet(0, map[string]float64{"fast": 9, "slow": 21}),
			TotalTrades:  2,
			WinRate:      50,
			ProfitFactor: 2,
			TotalProfit:  12345.5,
			FitnessScore: 0.8,
			Compliance:   domain.ComplianceState{Status: domain.ComplianceActive},
			Trades: []domain.ClosedTrade{
				{
					TradeID: "t1",
					Position: domain.Position{
						Instrument:  "EURUSD",
						Side:        domain.SideBuy,
						EntryTimeMs: 1704067200000,
						Features:    domain.EntryFeatures{RSI: domain.RSIOversold, Momentum: domain.MomentumUp, Trend: domain.TrendStrong},
					},
					ExitTimeMs:  1704070800000,
					RealizedPnL: 24691,
					ExitReason:  domain.ExitReasonTakeProfit,
				},
				{
					TradeID: "t2",
					Position: domain.Position{
						Instrument:  "EURUSD",
						Side:        domain.SideSell,
						EntryTimeMs: 1704074400000,
						Features:    domain.EntryFeatures{RSI: domain.RSINeutral, Momentum: domain.MomentumDown, Trend: domain.TrendWeak},
					},
					ExitTimeMs:  1704078000000,
					RealizedPnL: -12345.5,
					ExitReason:  domain.ExitReasonStopLoss,
				},
			},
		},
		{
			RunID:        "r-b",
			Params:       domain.NewParameterSet(1, map[string]float64{"fast": 9, "slow": 30}),
			FitnessScore: 0.5,
			Compliance:   domain.ComplianceState{Status: domain.ComplianceLimitBreached},
		},
		{
			RunID:  "r-c",
			Params: domain.NewParameterSet(2, map[string]float64{"fast": 40, "slow": 30}),
			Error:  "invalid strategy parameters",
		},
	}
}

func setupTestData(t *testing.T) (*memory.RunResultStore, *memory.ClosedTradeStore) {
	ctx := context.Background()

	resultStore := memory.NewRunResultStore()
	tradeStore := memory.NewClosedTradeStore()

	results := testResults()
	if err := resultStore.InsertBulk(ctx, "s1", results); err != nil {
		t.Fatalf("InsertBulk results failed: %v", err)
	}

	trades := make([]*domain.ClosedTrade, len(results[0].Trades))
	for i := range results[0].Trades {
		trades[i] = &results[0].Trades[i]
	}
	if err := tradeStore.InsertBulk(ctx, "r-a", trades); err != nil {
		t.Fatalf("InsertBulk trades failed: %v", err)
	}

	return resultStore, tradeStore
}

func TestGenerator_Generate(t *testing.T) {
	resultStore, tradeStore := setupTestData(t)

	gen := NewGenerator(resultStore, tradeStore).WithClock(fixedClock)
	report, err := gen.Generate(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !report.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("unexpected GeneratedAt %v", report.GeneratedAt)
	}

	s := report.Summary
	if s.RunsTotal != 3 || s.RunsFailed != 1 || s.RunsBreached != 1 || s.RunsOnTarget != 0 {
		t.Errorf("unexpected summary counts %+v", s)
	}
	if s.BestFitness != 0.8 || s.MedianFitness != 0.5 {
		t.Errorf("unexpected fitness summary %+v", s)
	}

	if len(report.Results) != 2 {
		t.Fatalf("expected 2 result rows, got %d", len(report.Results))
	}
	if report.Results[0].Rank != 1 || report.Results[0].RunID != "r-a" || report.Results[1].RunID != "r-b" {
		t.Errorf("unexpected ranking %+v", report.Results)
	}
	if report.Results[0].Params != "fast=9|slow=21" {
		t.Errorf("unexpected params %q", report.Results[0].Params)
	}

	if len(report.BestTrades) != 2 {
		t.Fatalf("expected 2 best trades, got %d", len(report.BestTrades))
	}
	if report.BestTrades[0].EntryTime != "2024-01-01T00:00:00Z" || report.BestTrades[0].ExitReason != "TAKE_PROFIT" {
		t.Errorf("unexpected first trade row %+v", report.BestTrades[0])
	}
	if len(report.BestPatterns) != 2 {
		t.Errorf("expected 2 patterns, got %d", len(report.BestPatterns))
	}
}

func TestGenerator_GenerateUnknownSweep(t *testing.T) {
	resultStore, tradeStore := setupTestData(t)

	_, err := NewGenerator(resultStore, tradeStore).Generate(context.Background(), "nope", 5)
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

func TestGenerator_FromResults(t *testing.T) {
	gen := NewGenerator(nil, nil).WithClock(fixedClock)

	report := gen.FromResults("mem", testResults(), 0)
	if len(report.Results) != 3 {
		t.Errorf("expected all 3 rows, got %d", len(report.Results))
	}
	if len(report.BestTrades) != 2 {
		t.Errorf("expected best trades from the result, got %d", len(report.BestTrades))
	}
	if report.Results[2].Error == "" {
		t.Error("expected failed run to keep its error")
	}
}

func TestRenderCSV(t *testing.T) {
	rows := ToResultRows(testResults()[:1])

	out, err := RenderCSV(rows)
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "rank,run_id,param_index,params,fitness_score,total_trades") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,r-a,0,fast=9|slow=21,0.8,2,") {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestWriteTradesCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, ToTradeRows(testResults()[0].Trades)); err != nil {
		t.Fatalf("WriteTradesCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "trade_id,instrument,side,entry_time") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "t2,EURUSD,SELL,2024-01-01T02:00:00Z") {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestWritePatternsCSV(t *testing.T) {
	report := NewGenerator(nil, nil).FromResults("mem", testResults(), 1)

	var buf bytes.Buffer
	if err := WritePatternsCSV(&buf, report.BestPatterns); err != nil {
		t.Fatalf("WritePatternsCSV failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "rsi_bucket,momentum_sign,trend_bucket,trades") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, ToResultRows(testResults()))

	out := buf.String()
	for _, want := range []string{"fast=9|slow=21", "12,345.50", "LIMIT_BREACHED", "FAILED"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPatternTable(t *testing.T) {
	report := NewGenerator(nil, nil).FromResults("mem", testResults(), 1)

	var buf bytes.Buffer
	RenderPatternTable(&buf, report.BestPatterns)

	out := buf.String()
	for _, want := range []string{"OVERSOLD", "STRONG", "-12,345.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	report := NewGenerator(nil, nil).WithClock(fixedClock).FromResults("s1", testResults(), 0)
	md := RenderMarkdown(report)

	for _, want := range []string{
		"# Sweep Report",
		"Sweep: s1",
		"Generated: 2024-03-01T12:00:00Z",
		"| Runs | 3 |",
		"| 1 | `fast=9, slow=21` | 0.8000 |",
		"FAILED: invalid strategy parameters",
		"## Best Run Entry Patterns",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	report := NewGenerator(nil, nil).FromResults("empty", nil, 0)
	md := RenderMarkdown(report)

	if !strings.Contains(md, "No results available.") || !strings.Contains(md, "No trades in the best run.") {
		t.Errorf("unexpected markdown for empty report:\n%s", md)
	}
}

func TestRenderJSON(t *testing.T) {
	report := NewGenerator(nil, nil).WithClock(fixedClock).FromResults("s1", testResults(), 1)

	b, err := RenderJSON(report)
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["sweep_id"] != "s1" {
		t.Errorf("unexpected sweep_id %v", decoded["sweep_id"])
	}
	if results, ok := decoded["results"].([]any); !ok || len(results) != 1 {
		t.Errorf("unexpected results %v", decoded["results"])
	}
}

package reporting

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Sweep Report\n\n")
	sb.WriteString(fmt.Sprintf("Sweep: %s\n\n", r.SweepID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", r.Summary.RunsTotal))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.Summary.RunsFailed))
	sb.WriteString(fmt.Sprintf("| Limit Breached | %d |\n", r.Summary.RunsBreached))
	sb.WriteString(fmt.Sprintf("| Target Reached | %d |\n", r.Summary.RunsOnTarget))
	sb.WriteString(fmt.Sprintf("| Best Fitness | %.4f |\n", r.Summary.BestFitness))
	sb.WriteString(fmt.Sprintf("| Median Fitness | %.4f |\n", r.Summary.MedianFitness))
	sb.WriteString("\n")

	// Ranked results
	sb.WriteString("## Top Results\n\n")
	if len(r.Results) > 0 {
		sb.WriteString("| Rank | Params | Fitness | Trades | WinRate | PF | Profit | MaxDD% | Status |\n")
		sb.WriteString("|------|--------|---------|--------|---------|----|--------|--------|--------|\n")
		for _, row := range r.Results {
			status := row.Compliance
			if row.Error != "" {
				status = "FAILED: " + row.Error
			}
			sb.WriteString(fmt.Sprintf("| %d | `%s` | %.4f | %d | %.2f | %.2f | %.2f | %.2f | %s |\n",
				row.Rank, strings.ReplaceAll(row.Params, "|", ", "), row.FitnessScore, row.TotalTrades, row.WinRate,
				row.ProfitFactor, row.TotalProfit, row.MaxDrawdownPct, status))
		}
	} else {
		sb.WriteString("No results available.\n")
	}
	sb.WriteString("\n")

	// Entry patterns of the best run
	sb.WriteString("## Best Run Entry Patterns\n\n")
	if len(r.BestPatterns) > 0 {
		sb.WriteString("| RSI | Momentum | Trend | Trades | Wins | WinRate | Profit |\n")
		sb.WriteString("|-----|----------|-------|--------|------|---------|--------|\n")
		for _, p := range r.BestPatterns {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %d | %d | %.2f | %.2f |\n",
				orDash(p.RSIBucket), p.MomentumSign, orDash(p.TrendBucket),
				p.Trades, p.Wins, p.WinRate, p.TotalProfit))
		}
	} else {
		sb.WriteString("No trades in the best run.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderJSON renders report as indented JSON.
func RenderJSON(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

package verification

import (
	"fmt"
	"strings"
)

// maxListedDivergences caps the divergences listed per run.
const maxListedDivergences = 5

// RenderMarkdown renders a VerificationReport as Markdown string.
func RenderMarkdown(report *VerificationReport) string {
	var sb strings.Builder

	sb.WriteString("# Replay Verification Report\n\n")
	sb.WriteString(fmt.Sprintf("Sweep: %s\n\n", report.SweepID))

	verdict := "DETERMINISTIC"
	if report.DivergentRuns > 0 {
		verdict = "DIVERGED"
	}
	sb.WriteString(fmt.Sprintf("## Verdict: %s\n\n", verdict))
	sb.WriteString(fmt.Sprintf("Runs matched: %d/%d\n\n", report.MatchedRuns, report.TotalRuns))

	sb.WriteString("## Runs\n\n")
	sb.WriteString("| # | Run | Trades (stored/replayed) | Profit (stored/replayed) | Status |\n")
	sb.WriteString("|---|-----|--------------------------|--------------------------|--------|\n")
	for i, r := range report.Results {
		status := "MATCH"
		if !r.Match {
			status = "DIVERGED"
		}
		sb.WriteString(fmt.Sprintf("| %d | `%s` | %d/%d | %.2f/%.2f | %s |\n",
			i+1, shortID(r.RunID), r.StoredTrades, r.ReplayedTrades, r.StoredProfit, r.ReplayedProfit, status))
	}
	sb.WriteString("\n")

	if report.DivergentRuns == 0 {
		return sb.String()
	}

	sb.WriteString("## Divergences\n\n")
	for _, r := range report.Results {
		if r.Match {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", r.RunID))
		for i, d := range r.Divergences {
			if i == maxListedDivergences {
				sb.WriteString(fmt.Sprintf("- ... %d more\n", len(r.Divergences)-i))
				break
			}
			sb.WriteString(fmt.Sprintf("- %s: stored %v, replayed %v\n", d.Field, d.Expected, d.Actual))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

package reporting

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RenderTable writes ranked results as a terminal table.
// Money columns use thousands separators.
func RenderTable(w io.Writer, rows []ResultRow) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Params", "Fitness", "Trades", "Win %", "PF", "Profit", "Max DD %", "Status"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range rows {
		status := r.Compliance
		if r.Error != "" {
			status = "FAILED"
		}
		table.Append([]string{
			strconv.Itoa(r.Rank),
			r.Params,
			fmt.Sprintf("%.4f", r.FitnessScore),
			strconv.Itoa(r.TotalTrades),
			fmt.Sprintf("%.1f", r.WinRate),
			fmt.Sprintf("%.2f", r.ProfitFactor),
			p.Sprintf("%.2f", r.TotalProfit),
			fmt.Sprintf("%.2f", r.MaxDrawdownPct),
			status,
		})
	}

	table.Render()
}

// RenderPatternTable writes entry pattern statistics as a terminal table.
func RenderPatternTable(w io.Writer, rows []PatternRow) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"RSI", "Momentum", "Trend", "Trades", "Wins", "Win %", "Profit"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range rows {
		table.Append([]string{
			orDash(r.RSIBucket),
			strconv.Itoa(r.MomentumSign),
			orDash(r.TrendBucket),
			strconv.Itoa(r.Trades),
			strconv.Itoa(r.Wins),
			fmt.Sprintf("%.1f", r.WinRate),
			p.Sprintf("%.2f", r.TotalProfit),
		})
	}

	table.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

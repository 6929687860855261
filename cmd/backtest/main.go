package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/cli"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/metrics"
	"strategy-lab/internal/optimizer"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/strategy"
)

type RunArgs struct {
	ConfigPath  string
	EnvFile     string
	Strategy    string
	Params      []string
	CSV         []string
	Instruments []string
	From, To    string
	Format      string
	TradesCSV   string
}

var runCmd = &cobra.Command{
	Use:   "backtest --strategy MOMENTUM_TREND --csv EURUSD=data/eurusd.csv --param fast_period=9",
	Short: "Run a single backtest over CSV or ClickHouse price history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(args)
	},
}

var args RunArgs

func run(a RunArgs) error {
	cfg, logger, err := cli.Setup(a.ConfigPath, a.EnvFile)
	if err != nil {
		return err
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	from, err := cli.ParseTime(a.From)
	if err != nil {
		return err
	}
	to, err := cli.ParseTime(a.To)
	if err != nil {
		return err
	}

	params, err := parseParams(a.Params)
	if err != nil {
		return err
	}
	strat, err := strategy.FromParams(strings.ToUpper(a.Strategy), params)
	if err != nil {
		return err
	}

	candles, release, err := cli.OpenCandleStore(ctx, cfg, a.CSV)
	if err != nil {
		return err
	}
	defer release()

	logger.WithFields(log.Fields{
		"strategy": strat.ID(),
		"params":   params.Key(),
	}).Info("running backtest")

	opts := cfg.BacktestOptions(logger)
	opts.RunKey = "backtest|" + params.Key()
	res, err := backtest.NewRunner(candles).Run(ctx, a.Instruments, from, to, strat, opts)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	res.Params = params
	res.FitnessScore = cfg.Scorer()(res)

	summary := metrics.Summarize(res.Trades)
	logger.WithFields(log.Fields{
		"trades":       summary.TotalTrades,
		"win_rate":     summary.WinRate,
		"expectancy":   summary.Expectancy,
		"total_pips":   summary.TotalPips,
		"max_losses":   summary.MaxConsecutiveLosses,
		"compliance":   res.Compliance.Status,
		"final_equity": res.FinalBalance,
	}).Info("backtest finished")

	if a.TradesCSV != "" {
		if err := writeTrades(a.TradesCSV, res.Trades); err != nil {
			return err
		}
		logger.WithField("path", a.TradesCSV).Info("trades written")
	}

	report := reporting.NewGenerator(nil, nil).FromResults("", []*domain.RunResult{res}, 1)
	return printReport(report, a.Format)
}

// parseParams accepts single values only, e.g. fast_period=9.
func parseParams(specs []string) (domain.ParameterSet, error) {
	if len(specs) == 0 {
		return domain.ParameterSet{}, nil
	}
	ranges, err := optimizer.ParseRanges(specs)
	if err != nil {
		return domain.ParameterSet{}, err
	}
	sets, err := optimizer.Enumerate(ranges, 1)
	if err != nil {
		return domain.ParameterSet{}, fmt.Errorf("--param takes one value per name: %w", err)
	}
	return sets[0], nil
}

func writeTrades(path string, trades []domain.ClosedTrade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return reporting.WriteTradesCSV(f, reporting.ToTradeRows(trades))
}

func printReport(report *reporting.Report, format string) error {
	switch format {
	case "json":
		b, err := reporting.RenderJSON(report)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	case "markdown":
		fmt.Print(reporting.RenderMarkdown(report))
	case "csv":
		return reporting.WriteTradesCSV(os.Stdout, report.BestTrades)
	default:
		reporting.RenderTable(os.Stdout, report.Results)
		if len(report.BestPatterns) > 0 {
			fmt.Println()
			reporting.RenderPatternTable(os.Stdout, report.BestPatterns)
		}
	}
	return nil
}

func main() {
	flags := runCmd.Flags()
	flags.StringVar(&args.ConfigPath, "config", "", "YAML config file (defaults apply when empty)")
	flags.StringVar(&args.EnvFile, "env-file", "", "Optional .env file with STRATLAB_* overrides")
	flags.StringVar(&args.Strategy, "strategy", strategy.TypeMomentumTrend, "Strategy: MOMENTUM_TREND, RSI_REVERSION")
	flags.StringArrayVar(&args.Params, "param", nil, "Strategy parameter name=value (repeatable)")
	flags.StringArrayVar(&args.CSV, "csv", nil, "Candle CSV as INSTRUMENT=path or path (repeatable); ClickHouse is used when absent")
	flags.StringSliceVar(&args.Instruments, "instruments", nil, "Instruments to load (default: all)")
	flags.StringVar(&args.From, "from", "", "Start time (RFC3339, YYYY-MM-DD or unix ms)")
	flags.StringVar(&args.To, "to", "", "End time (RFC3339, YYYY-MM-DD or unix ms)")
	flags.StringVar(&args.Format, "format", "table", "Output: table, json, markdown, csv")
	flags.StringVar(&args.TradesCSV, "trades-csv", "", "Write closed trades to this CSV file")

	runCmd.SilenceUsage = true
	cobra.CheckErr(runCmd.Execute())
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"strategy-lab/internal/cli"
	"strategy-lab/internal/optimizer"
	"strategy-lab/internal/orchestrator"
	"strategy-lab/internal/reporting"
	"strategy-lab/internal/strategy"
)

type RunArgs struct {
	ConfigPath  string
	EnvFile     string
	Strategy    string
	Ranges      []string
	CSV         []string
	Instruments []string
	From, To    string
	SweepID     string
	TopN        int
	Workers     int
	Format      string
	ResultsCSV  string
	ReportMD    string
	MetricsAddr string
}

var args RunArgs

var runCmd = &cobra.Command{
	Use:   "optimize --strategy MOMENTUM_TREND --csv EURUSD=data/eurusd.csv --range fast_period=5:15:5 --range slow_period=20,30",
	Short: "Sweep strategy parameters and rank the runs by fitness",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(args)
	},
}

func run(a RunArgs) error {
	cfg, logger, err := cli.Setup(a.ConfigPath, a.EnvFile)
	if err != nil {
		return err
	}
	if a.Workers > 0 {
		cfg.Optimizer.WorkerCount = a.Workers
	}
	if a.TopN >= 0 {
		cfg.Optimizer.TopN = a.TopN
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	stopMetrics := cli.ServeMetrics(a.MetricsAddr, logger)
	defer stopMetrics()

	ranges, err := optimizer.ParseRanges(a.Ranges)
	if err != nil {
		return err
	}
	from, err := cli.ParseTime(a.From)
	if err != nil {
		return err
	}
	to, err := cli.ParseTime(a.To)
	if err != nil {
		return err
	}

	candles, release, err := cli.OpenCandleStore(ctx, cfg, a.CSV)
	if err != nil {
		return err
	}
	defer release()

	stores, err := cli.OpenResultStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	optOpts := cfg.OptimizerOptions(logger)
	optOpts.StripDetail = true
	optOpts.Progress = func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rprogress: %d/%d", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		CandleStore:      candles,
		RunResultStore:   stores.Results,
		ClosedTradeStore: stores.Trades,
		StrategyType:     strings.ToUpper(a.Strategy),
		Instruments:      a.Instruments,
		From:             from,
		To:               to,
		Ranges:           ranges,
		Scorer:           cfg.Scorer(),
		TopN:             cfg.Optimizer.TopN,
		SweepID:          a.SweepID,
		Backtest:         cfg.BacktestOptions(logger),
		Optimizer:        optOpts,
		Logger:           logger,
	})

	result, runErr := orch.Run(ctx)
	if result == nil {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, ctx.Err()) {
		return runErr
	}
	for _, e := range result.Errors {
		logger.Warn(e)
	}

	logger.WithFields(log.Fields{
		"sweep_id":   result.SweepID,
		"completed":  result.RunsCompleted,
		"failed":     result.RunsFailed,
		"persistent": stores.Persistent,
	}).Info("sweep complete")

	report, err := reporting.NewGenerator(stores.Results, stores.Trades).
		Generate(context.WithoutCancel(ctx), result.SweepID, cfg.Optimizer.TopN)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	if a.ResultsCSV != "" {
		if err := writeFile(a.ResultsCSV, func(f *os.File) error {
			return reporting.WriteResultsCSV(f, report.Results)
		}); err != nil {
			return err
		}
	}
	if a.ReportMD != "" {
		if err := writeFile(a.ReportMD, func(f *os.File) error {
			_, err := f.WriteString(reporting.RenderMarkdown(report))
			return err
		}); err != nil {
			return err
		}
	}

	switch a.Format {
	case "json":
		b, err := reporting.RenderJSON(report)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	case "csv":
		if err := reporting.WriteResultsCSV(os.Stdout, report.Results); err != nil {
			return err
		}
	default:
		reporting.RenderTable(os.Stdout, report.Results)
		if len(report.BestPatterns) > 0 {
			fmt.Println()
			reporting.RenderPatternTable(os.Stdout, report.BestPatterns)
		}
	}

	// A cancelled sweep still prints its partial ranking.
	return runErr
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func main() {
	flags := runCmd.Flags()
	flags.StringVar(&args.ConfigPath, "config", "", "YAML config file (defaults apply when empty)")
	flags.StringVar(&args.EnvFile, "env-file", "", "Optional .env file with STRATLAB_* overrides")
	flags.StringVar(&args.Strategy, "strategy", strategy.TypeMomentumTrend, "Strategy: MOMENTUM_TREND, RSI_REVERSION")
	flags.StringArrayVar(&args.Ranges, "range", nil, "Parameter range: name=v1,v2 or name=start:stop:step (repeatable)")
	flags.StringArrayVar(&args.CSV, "csv", nil, "Candle CSV as INSTRUMENT=path or path (repeatable); ClickHouse is used when absent")
	flags.StringSliceVar(&args.Instruments, "instruments", nil, "Instruments to load (default: all)")
	flags.StringVar(&args.From, "from", "", "Start time (RFC3339, YYYY-MM-DD or unix ms)")
	flags.StringVar(&args.To, "to", "", "End time (RFC3339, YYYY-MM-DD or unix ms)")
	flags.StringVar(&args.SweepID, "sweep-id", "", "Sweep ID (default: random UUID)")
	flags.IntVar(&args.TopN, "top", -1, "Number of ranked results to show (default from config)")
	flags.IntVar(&args.Workers, "workers", 0, "Concurrent runs (default from config)")
	flags.StringVar(&args.Format, "format", "table", "Output: table, json, csv")
	flags.StringVar(&args.ResultsCSV, "results-csv", "", "Write ranked results to this CSV file")
	flags.StringVar(&args.ReportMD, "report-md", "", "Write a Markdown report to this file")
	flags.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address, e.g. :9090")

	runCmd.MarkFlagRequired("range")
	runCmd.SilenceUsage = true
	cobra.CheckErr(runCmd.Execute())
}

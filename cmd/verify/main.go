package main

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"strategy-lab/internal/cli"
	"strategy-lab/internal/strategy"
	"strategy-lab/internal/verification"
)

type RunArgs struct {
	ConfigPath  string
	EnvFile     string
	SweepID     string
	RunID       string
	Strategy    string
	CSV         []string
	Instruments []string
	From, To    string
	Format      string
}

var args RunArgs

var runCmd = &cobra.Command{
	Use:   "verify --sweep-id <id> --strategy MOMENTUM_TREND [--csv EURUSD=data/eurusd.csv]",
	Short: "Replay persisted runs and check they reproduce the stored trades",
	Long: "Replays every run of a persisted sweep (or one run with --run-id) over the same\n" +
		"price history and compares statistics and closed trades with what was stored.\n" +
		"Strategy, history window and risk config must match the original sweep.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(args)
	},
}

func run(a RunArgs) error {
	cfg, logger, err := cli.Setup(a.ConfigPath, a.EnvFile)
	if err != nil {
		return err
	}
	if cfg.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is required (storage.postgres_dsn or STRATLAB_POSTGRES_DSN)")
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

	verifier, err := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		CandleStore:      candles,
		RunResultStore:   stores.Results,
		ClosedTradeStore: stores.Trades,
		StrategyType:     strings.ToUpper(a.Strategy),
		Instruments:      a.Instruments,
		From:             from,
		To:               to,
		Backtest:         cfg.BacktestOptions(logger),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	var report *verification.VerificationReport
	if a.RunID != "" {
		result, err := verifier.VerifyRun(ctx, a.RunID)
		if err != nil {
			return err
		}
		report = &verification.VerificationReport{
			SweepID:   a.SweepID,
			TotalRuns: 1,
			Results:   []verification.VerificationResult{*result},
		}
		if result.Match {
			report.MatchedRuns = 1
		} else {
			report.DivergentRuns = 1
		}
	} else {
		report, err = verifier.VerifySweep(ctx, a.SweepID)
		if err != nil {
			return err
		}
	}

	logger.WithFields(log.Fields{
		"sweep_id":  report.SweepID,
		"runs":      report.TotalRuns,
		"matched":   report.MatchedRuns,
		"divergent": report.DivergentRuns,
	}).Info("verification complete")

	switch a.Format {
	case "json":
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	default:
		fmt.Print(verification.RenderMarkdown(report))
	}

	if report.DivergentRuns > 0 {
		return fmt.Errorf("%d of %d runs diverged", report.DivergentRuns, report.TotalRuns)
	}
	return nil
}

func main() {
	flags := runCmd.Flags()
	flags.StringVar(&args.ConfigPath, "config", "", "YAML config file (defaults apply when empty)")
	flags.StringVar(&args.EnvFile, "env-file", "", "Optional .env file with STRATLAB_* overrides")
	flags.StringVar(&args.SweepID, "sweep-id", "", "Sweep to verify")
	flags.StringVar(&args.RunID, "run-id", "", "Verify a single run instead of the whole sweep")
	flags.StringVar(&args.Strategy, "strategy", strategy.TypeMomentumTrend, "Strategy the sweep used")
	flags.StringArrayVar(&args.CSV, "csv", nil, "Candle CSV as INSTRUMENT=path or path (repeatable); ClickHouse is used when absent")
	flags.StringSliceVar(&args.Instruments, "instruments", nil, "Instruments the sweep used (default: all)")
	flags.StringVar(&args.From, "from", "", "Start time the sweep used")
	flags.StringVar(&args.To, "to", "", "End time the sweep used")
	flags.StringVar(&args.Format, "format", "markdown", "Output: markdown, json")

	runCmd.MarkFlagsOneRequired("sweep-id", "run-id")
	runCmd.SilenceUsage = true
	cobra.CheckErr(runCmd.Execute())
}

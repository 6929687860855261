package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"strategy-lab/internal/cli"
	"strategy-lab/internal/reporting"
)

type RunArgs struct {
	ConfigPath string
	EnvFile    string
	SweepID    string
	TopN       int
	OutputDir  string
}

var args RunArgs

var runCmd = &cobra.Command{
	Use:   "report --sweep-id <id> [--output-dir docs]",
	Short: "Render the report of a persisted sweep",
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

	stores, err := cli.OpenResultStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	topN := a.TopN
	if topN < 0 {
		topN = cfg.Optimizer.TopN
	}
	report, err := reporting.NewGenerator(stores.Results, stores.Trades).Generate(ctx, a.SweepID, topN)
	if err != nil {
		return err
	}

	if a.OutputDir == "" {
		reporting.RenderTable(os.Stdout, report.Results)
		return nil
	}

	if err := os.MkdirAll(a.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outputs := []struct {
		name  string
		write func(f *os.File) error
	}{
		{"REPORT.md", func(f *os.File) error {
			_, err := f.WriteString(reporting.RenderMarkdown(report))
			return err
		}},
		{"results.csv", func(f *os.File) error { return reporting.WriteResultsCSV(f, report.Results) }},
		{"best_trades.csv", func(f *os.File) error { return reporting.WriteTradesCSV(f, report.BestTrades) }},
		{"best_patterns.csv", func(f *os.File) error { return reporting.WritePatternsCSV(f, report.BestPatterns) }},
		{"report.json", func(f *os.File) error {
			b, err := reporting.RenderJSON(report)
			if err != nil {
				return err
			}
			_, err = f.Write(b)
			return err
		}},
	}

	fmt.Println("Sweep report generated successfully:")
	for _, out := range outputs {
		path := filepath.Join(a.OutputDir, out.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := out.write(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("  - %s\n", path)
	}
	return nil
}

func main() {
	flags := runCmd.Flags()
	flags.StringVar(&args.ConfigPath, "config", "", "YAML config file (defaults apply when empty)")
	flags.StringVar(&args.EnvFile, "env-file", "", "Optional .env file with STRATLAB_* overrides")
	flags.StringVar(&args.SweepID, "sweep-id", "", "Sweep to report on (required)")
	flags.IntVar(&args.TopN, "top", -1, "Number of ranked results (default from config)")
	flags.StringVar(&args.OutputDir, "output-dir", "", "Write REPORT.md, CSV and JSON files here; prints a table when empty")

	runCmd.MarkFlagRequired("sweep-id")
	runCmd.SilenceUsage = true
	cobra.CheckErr(runCmd.Execute())
}

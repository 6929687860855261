package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"strategy-lab/internal/cli"
	chstore "strategy-lab/internal/storage/clickhouse"
	"strategy-lab/internal/storage/migrations"
)

type RunArgs struct {
	ConfigPath string
	EnvFile    string
	CSV        []string
	BatchSize  int
}

var args RunArgs

var runCmd = &cobra.Command{
	Use:   "ingest --csv EURUSD=data/eurusd.csv [--csv GBPUSD=data/gbpusd.csv]",
	Short: "Load candle CSV files into the ClickHouse candles table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(args)
	},
}

func run(a RunArgs) error {
	cfg, logger, err := cli.Setup(a.ConfigPath, a.EnvFile)
	if err != nil {
		return err
	}
	if cfg.Storage.ClickHouseDSN == "" {
		return fmt.Errorf("clickhouse DSN is required (storage.clickhouse_dsn or STRATLAB_CLICKHOUSE_DSN)")
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// Validate every file before touching the database
	candles, err := cli.ReadCSVCandles(a.CSV)
	if err != nil {
		return err
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	store := chstore.NewCandleStore(conn)

	batch := a.BatchSize
	if batch <= 0 {
		batch = len(candles)
	}
	for start := 0; start < len(candles); start += batch {
		end := min(start+batch, len(candles))
		if err := store.InsertBulk(ctx, candles[start:end]); err != nil {
			return fmt.Errorf("insert candles %d-%d: %w", start, end, err)
		}
		logger.WithFields(log.Fields{
			"inserted": end,
			"total":    len(candles),
		}).Info("ingest progress")
	}

	instruments, err := store.ListInstruments(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"candles":     len(candles),
		"instruments": instruments,
	}).Info("ingest complete")
	return nil
}

func main() {
	flags := runCmd.Flags()
	flags.StringVar(&args.ConfigPath, "config", "", "YAML config file (defaults apply when empty)")
	flags.StringVar(&args.EnvFile, "env-file", "", "Optional .env file with STRATLAB_* overrides")
	flags.StringArrayVar(&args.CSV, "csv", nil, "Candle CSV as INSTRUMENT=path or path (repeatable)")
	flags.IntVar(&args.BatchSize, "batch-size", 10000, "Candles per insert batch (0 = single batch)")

	runCmd.MarkFlagRequired("csv")
	runCmd.SilenceUsage = true
	cobra.CheckErr(runCmd.Execute())
}

// Package cli holds the wiring shared by the command line tools: config
// and logger setup, store selection and the metrics endpoint.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"strategy-lab/internal/config"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
	chstore "strategy-lab/internal/storage/clickhouse"
	"strategy-lab/internal/storage/memory"
	"strategy-lab/internal/storage/migrations"
	pgstore "strategy-lab/internal/storage/postgres"
)

// ErrNoHistorySource is returned when neither CSV files nor ClickHouse are configured.
var ErrNoHistorySource = errors.New("no price history source: pass --csv or set a ClickHouse DSN")

// Setup loads the env file and config, then builds the logger.
func Setup(configPath, envFile string) (*config.Config, *logrus.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(log logrus.FieldLogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ParseCSVSpec splits "INSTRUMENT=path". A bare path uses the upper-cased
// file name without extension as the instrument.
func ParseCSVSpec(spec string) (instrument, path string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("empty csv spec")
	}
	if inst, p, ok := strings.Cut(spec, "="); ok {
		inst, p = strings.TrimSpace(inst), strings.TrimSpace(p)
		if inst == "" || p == "" {
			return "", "", fmt.Errorf("csv spec %q: want INSTRUMENT=path", spec)
		}
		return inst, p, nil
	}
	base := filepath.Base(spec)
	inst := strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
	if inst == "" {
		return "", "", fmt.Errorf("csv spec %q: cannot derive instrument", spec)
	}
	return inst, spec, nil
}

// ReadCSVCandles reads every spec into candles, validated per instrument.
func ReadCSVCandles(specs []string) ([]*domain.Candle, error) {
	var out []*domain.Candle
	for _, spec := range specs {
		inst, path, err := ParseCSVSpec(spec)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		series, err := history.LoadCSV(f, inst)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		for _, c := range series.Candles() {
			out = append(out, &c)
		}
	}
	return out, nil
}

// LoadCSVStore reads CSV files into an in-memory candle store.
func LoadCSVStore(ctx context.Context, specs []string) (*memory.CandleStore, error) {
	candles, err := ReadCSVCandles(specs)
	if err != nil {
		return nil, err
	}
	store := memory.NewCandleStore()
	if err := store.InsertBulk(ctx, candles); err != nil {
		return nil, fmt.Errorf("index candles: %w", err)
	}
	return store, nil
}

// OpenCandleStore returns a CSV-backed store when specs are given,
// otherwise a migrated ClickHouse store. The returned func releases it.
func OpenCandleStore(ctx context.Context, cfg *config.Config, csvSpecs []string) (storage.CandleStore, func(), error) {
	if len(csvSpecs) > 0 {
		store, err := LoadCSVStore(ctx, csvSpecs)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	if cfg.Storage.ClickHouseDSN == "" {
		return nil, nil, ErrNoHistorySource
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return nil, nil, err
	}
	return chstore.NewCandleStore(conn), func() { conn.Close() }, nil
}

// ResultStores groups the stores a sweep persists into.
type ResultStores struct {
	Results    storage.RunResultStore
	Trades     storage.ClosedTradeStore
	Persistent bool // backed by Postgres
	close      func()
}

// Close releases the underlying connection.
func (s *ResultStores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenResultStores connects to Postgres and applies migrations when a DSN
// is configured; otherwise results live in memory for the process lifetime.
func OpenResultStores(ctx context.Context, cfg *config.Config) (*ResultStores, error) {
	if cfg.Storage.PostgresDSN == "" {
		return &ResultStores{
			Results: memory.NewRunResultStore(),
			Trades:  memory.NewClosedTradeStore(),
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &ResultStores{
		Results:    pgstore.NewRunResultStore(pool),
		Trades:     pgstore.NewClosedTradeStore(pool),
		Persistent: true,
		close:      pool.Close,
	}, nil
}

// ServeMetrics serves /health and /metrics on addr in the background.
// An empty addr is a no-op. The returned func shuts the server down.
func ServeMetrics(addr string, log logrus.FieldLogger) func() {
	if addr == "" {
		return func() {}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// ParseTime accepts RFC3339, a date (UTC midnight), or unix milliseconds.
// An empty string returns 0.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	return 0, fmt.Errorf("invalid time %q: want RFC3339, YYYY-MM-DD or unix ms", s)
}

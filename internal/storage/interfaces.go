package storage

import (
	"context"

	"strategy-lab/internal/domain"
)

// CandleStore provides access to candles storage (price history input).
type CandleStore interface {
	// InsertBulk adds multiple candles. Fails entire batch on duplicate (instrument, timestamp_ms).
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetByInstrument retrieves all candles for an instrument, ordered by timestamp ASC.
	GetByInstrument(ctx context.Context, instrument string) ([]*domain.Candle, error)

	// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Candle, error)

	// ListInstruments returns the distinct instruments, sorted.
	ListInstruments(ctx context.Context) ([]string, error)
}

// RunResultStore provides access to run_results storage.
// Trades and equity curves are not part of the stored record.
type RunResultStore interface {
	// Insert adds a run result under a sweep. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, sweepID string, r *domain.RunResult) error

	// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, sweepID string, results []*domain.RunResult) error

	// GetByID retrieves a run result by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunResult, error)

	// GetBySweep retrieves all results of a sweep, ordered by fitness_score DESC, param index ASC.
	GetBySweep(ctx context.Context, sweepID string) ([]*domain.RunResult, error)
}

// ClosedTradeStore provides access to closed_trades storage.
type ClosedTradeStore interface {
	// InsertBulk adds the trades of a run atomically, preserving their order.
	// Fails entire batch on duplicate (run_id, trade_id).
	InsertBulk(ctx context.Context, runID string, trades []*domain.ClosedTrade) error

	// GetByRun retrieves all trades of a run in close order.
	GetByRun(ctx context.Context, runID string) ([]*domain.ClosedTrade, error)
}

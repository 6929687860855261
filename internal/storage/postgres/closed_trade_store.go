package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// ClosedTradeStore implements storage.ClosedTradeStore using PostgreSQL.
type ClosedTradeStore struct {
	pool *Pool
}

// NewClosedTradeStore creates a new ClosedTradeStore.
func NewClosedTradeStore(pool *Pool) *ClosedTradeStore {
	return &ClosedTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClosedTradeStore = (*ClosedTradeStore)(nil)

// InsertBulk adds the trades of a run atomically, preserving their order.
// Fails entire batch on any duplicate (run_id, trade_id).
func (s *ClosedTradeStore) InsertBulk(ctx context.Context, runID string, trades []*domain.ClosedTrade) error {
	if len(trades) == 0 {
		return nil
	}
	if runID == "" {
		return fmt.Errorf("%w: empty run_id", storage.ErrInvalidInput)
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		observe("insert_closed_trades", start, err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO closed_trades (
			run_id, trade_id, seq,
			instrument, side, entry_price, stop_loss, take_profit, size, entry_time_ms,
			strategy_tag, rsi_bucket, momentum_sign, trend_bucket, bars_held,
			exit_price, exit_time_ms, realized_pnl, pnl_pips, exit_reason
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)
	`

	for seq, t := range trades {
		_, err := tx.Exec(ctx, query,
			runID, t.TradeID, seq,
			t.Instrument, string(t.Side), t.EntryPrice, t.StopLoss, t.TakeProfit, t.Size, t.EntryTimeMs,
			t.StrategyTag, string(t.Features.RSI), int16(t.Features.Momentum), string(t.Features.Trend), t.BarsHeld,
			t.ExitPrice, t.ExitTimeMs, t.RealizedPnL, t.PnLPips, string(t.ExitReason),
		)
		if err != nil {
			observe("insert_closed_trades", start, err)
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert closed trade in bulk: %w", err)
		}
	}

	err = tx.Commit(ctx)
	observe("insert_closed_trades", start, err)
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves all trades of a run in close order.
func (s *ClosedTradeStore) GetByRun(ctx context.Context, runID string) ([]*domain.ClosedTrade, error) {
	query := `
		SELECT
			trade_id,
			instrument, side, entry_price, stop_loss, take_profit, size, entry_time_ms,
			strategy_tag, rsi_bucket, momentum_sign, trend_bucket, bars_held,
			exit_price, exit_time_ms, realized_pnl, pnl_pips, exit_reason
		FROM closed_trades
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		observe("get_closed_trades_by_run", start, err)
		return nil, fmt.Errorf("get closed trades by run: %w", err)
	}
	defer rows.Close()

	trades, err := scanClosedTrades(rows)
	observe("get_closed_trades_by_run", start, err)
	return trades, err
}

// scanClosedTrades scans multiple rows into a slice of ClosedTrade.
func scanClosedTrades(rows pgx.Rows) ([]*domain.ClosedTrade, error) {
	var trades []*domain.ClosedTrade

	for rows.Next() {
		var (
			t                            domain.ClosedTrade
			side, rsi, trend, exitReason string
			momentum                     int16
		)

		err := rows.Scan(
			&t.TradeID,
			&t.Instrument, &side, &t.EntryPrice, &t.StopLoss, &t.TakeProfit, &t.Size, &t.EntryTimeMs,
			&t.StrategyTag, &rsi, &momentum, &trend, &t.BarsHeld,
			&t.ExitPrice, &t.ExitTimeMs, &t.RealizedPnL, &t.PnLPips, &exitReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed trade row: %w", err)
		}

		t.Side = domain.Side(side)
		t.Features = domain.EntryFeatures{
			RSI:      domain.RSIBucket(rsi),
			Momentum: domain.MomentumSign(momentum),
			Trend:    domain.TrendBucket(trend),
		}
		t.ExitReason = domain.ExitReason(exitReason)
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed trade rows: %w", err)
	}

	return trades, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// RunResultStore implements storage.RunResultStore using PostgreSQL.
type RunResultStore struct {
	pool *Pool
}

// NewRunResultStore creates a new RunResultStore.
func NewRunResultStore(pool *Pool) *RunResultStore {
	return &RunResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunResultStore = (*RunResultStore)(nil)

const insertRunResultQuery = `
	INSERT INTO run_results (
		run_id, sweep_id, param_index, params,
		total_trades, wins, losses, win_rate, profit_factor, total_profit,
		max_drawdown_pct, fitness_score, final_balance,
		starting_balance, current_balance, peak_balance, daily_loss_used, total_drawdown_pct,
		consecutive_losses, trading_day_count, compliance_status, breach_reason,
		ticks_processed, strategy_errors, invalid_signals, ignored_signals, rejected_signals,
		error
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9, $10,
		$11, $12, $13,
		$14, $15, $16, $17, $18,
		$19, $20, $21, $22,
		$23, $24, $25, $26, $27,
		$28
	)
`

const selectRunResultColumns = `
	SELECT
		run_id, param_index, params,
		total_trades, wins, losses, win_rate, profit_factor, total_profit,
		max_drawdown_pct, fitness_score, final_balance,
		starting_balance, current_balance, peak_balance, daily_loss_used, total_drawdown_pct,
		consecutive_losses, trading_day_count, compliance_status, breach_reason,
		ticks_processed, strategy_errors, invalid_signals, ignored_signals, rejected_signals,
		error
	FROM run_results
`

// runResultArgs flattens a result into insert arguments.
func runResultArgs(sweepID string, r *domain.RunResult) ([]any, error) {
	if r.RunID == "" {
		return nil, fmt.Errorf("%w: empty run_id", storage.ErrInvalidInput)
	}
	params, err := json.Marshal(r.Params.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	c := r.Compliance
	return []any{
		r.RunID, sweepID, r.Params.Index, params,
		r.TotalTrades, r.Wins, r.Losses, r.WinRate, r.ProfitFactor, r.TotalProfit,
		r.MaxDrawdownPct, r.FitnessScore, r.FinalBalance,
		c.StartingBalance, c.CurrentBalance, c.PeakBalance, c.DailyLossUsed, c.TotalDrawdownPct,
		c.ConsecutiveLosses, c.TradingDayCount, string(c.Status), c.BreachReason,
		r.TicksProcessed, r.StrategyErrors, r.InvalidSignals, r.IgnoredSignals, r.RejectedSignals,
		r.Error,
	}, nil
}

// Insert adds a run result. Returns ErrDuplicateKey if run_id exists.
func (s *RunResultStore) Insert(ctx context.Context, sweepID string, r *domain.RunResult) (err error) {
	start := time.Now()
	defer func() { observe("insert_run_result", start, err) }()

	args, err := runResultArgs(sweepID, r)
	if err != nil {
		return err
	}
	if _, err = s.pool.Exec(ctx, insertRunResultQuery, args...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run result: %w", err)
	}
	return nil
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *RunResultStore) InsertBulk(ctx context.Context, sweepID string, results []*domain.RunResult) error {
	if len(results) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		observe("insert_run_results", start, err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range results {
		args, err := runResultArgs(sweepID, r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertRunResultQuery, args...); err != nil {
			observe("insert_run_results", start, err)
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert run result in bulk: %w", err)
		}
	}

	err = tx.Commit(ctx)
	observe("insert_run_results", start, err)
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a run result by its ID. Returns ErrNotFound if not exists.
func (s *RunResultStore) GetByID(ctx context.Context, runID string) (*domain.RunResult, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, selectRunResultColumns+` WHERE run_id = $1`, runID)
	r, err := scanRunResult(row)
	if err != nil {
		if isNotFoundError(err) {
			observe("get_run_result", start, nil)
			return nil, storage.ErrNotFound
		}
		observe("get_run_result", start, err)
		return nil, fmt.Errorf("get run result by id: %w", err)
	}
	observe("get_run_result", start, nil)
	return r, nil
}

// GetBySweep retrieves all results of a sweep, best first.
func (s *RunResultStore) GetBySweep(ctx context.Context, sweepID string) ([]*domain.RunResult, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectRunResultColumns+`
		WHERE sweep_id = $1
		ORDER BY fitness_score DESC, param_index ASC
	`, sweepID)
	if err != nil {
		observe("get_run_results_by_sweep", start, err)
		return nil, fmt.Errorf("get run results by sweep: %w", err)
	}
	defer rows.Close()

	var results []*domain.RunResult
	for rows.Next() {
		r, err := scanRunResult(rows)
		if err != nil {
			observe("get_run_results_by_sweep", start, err)
			return nil, fmt.Errorf("scan run result row: %w", err)
		}
		results = append(results, r)
	}
	err = rows.Err()
	observe("get_run_results_by_sweep", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate run result rows: %w", err)
	}
	return results, nil
}

// scanRunResult scans a single row into a RunResult.
func scanRunResult(row pgx.Row) (*domain.RunResult, error) {
	var (
		r      domain.RunResult
		params []byte
		status string
	)
	c := &r.Compliance

	err := row.Scan(
		&r.RunID, &r.Params.Index, &params,
		&r.TotalTrades, &r.Wins, &r.Losses, &r.WinRate, &r.ProfitFactor, &r.TotalProfit,
		&r.MaxDrawdownPct, &r.FitnessScore, &r.FinalBalance,
		&c.StartingBalance, &c.CurrentBalance, &c.PeakBalance, &c.DailyLossUsed, &c.TotalDrawdownPct,
		&c.ConsecutiveLosses, &c.TradingDayCount, &status, &c.BreachReason,
		&r.TicksProcessed, &r.StrategyErrors, &r.InvalidSignals, &r.IgnoredSignals, &r.RejectedSignals,
		&r.Error,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &r.Params.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	c.Status = domain.ComplianceStatus(status)
	return &r, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

const candleColumns = `instrument, timestamp_ms, open, high, low, close, bid_close, ask_close, volume`

// InsertBulk adds multiple candles. Fails entire batch on duplicate (instrument, timestamp_ms).
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) (err error) {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert_candles", time.Since(start).Seconds(), err) }()

	// Check for intra-batch duplicates
	type key struct {
		instrument  string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, c := range candles {
		if c.Instrument == "" {
			return fmt.Errorf("%w: empty instrument", storage.ErrInvalidInput)
		}
		k := key{c.Instrument, c.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, c := range candles {
		exists, err := s.exists(ctx, c.Instrument, c.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO candles (`+candleColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.Instrument, c.TimestampMs,
			c.Open, c.High, c.Low, c.Close,
			c.BidClose, c.AskClose, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByInstrument retrieves all candles for an instrument, ordered by timestamp ASC.
func (s *CandleStore) GetByInstrument(ctx context.Context, instrument string) ([]*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles FINAL
		WHERE instrument = ?
		ORDER BY timestamp_ms ASC
	`
	return s.query(ctx, "get_candles", query, instrument)
}

// GetByTimeRange retrieves candles for an instrument within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles FINAL
		WHERE instrument = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`
	return s.query(ctx, "get_candles_by_range", query, instrument, start, end)
}

// ListInstruments returns the distinct instruments, sorted.
func (s *CandleStore) ListInstruments(ctx context.Context) (instruments []string, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "list_instruments", time.Since(start).Seconds(), err) }()

	rows, err := s.conn.Query(ctx, `SELECT DISTINCT instrument FROM candles ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inst string
		if err := rows.Scan(&inst); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}
	return instruments, nil
}

func (s *CandleStore) query(ctx context.Context, operation, query string, args ...any) (candles []*domain.Candle, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err) }()

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// exists checks if a candle with the given key exists.
func (s *CandleStore) exists(ctx context.Context, instrument string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE instrument = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, instrument, timestampMs).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(
			&c.Instrument, &c.TimestampMs,
			&c.Open, &c.High, &c.Low, &c.Close,
			&c.BidClose, &c.AskClose, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}

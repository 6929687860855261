package storage

import "errors"

// Run results and trades are written once per sweep and never updated.
var (
	// ErrNotFound is returned when a run, trade or candle does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned for a second write of the same run_id,
	// (run_id, trade_id) or (instrument, timestamp_ms).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for a nil record, an empty key or a missing sweep ID.
	ErrInvalidInput = errors.New("invalid input")
)

package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

func hashParts(format string, args ...any) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf(format, args...)))
	return hex.EncodeToString(hash[:])
}

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_key|instrument|entry_time_ms|seq)
// seq is the ordinal of the trade within the run and disambiguates
// re-entries on the same bar. Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runKey string,
	instrument string,
	entryTimeMs int64,
	seq int,
) string {
	return hashParts("%s|%s|%d|%d",
		runKey,
		instrument,
		entryTimeMs,
		seq,
	)
}

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(sweep_id|params_key)
func ComputeRunID(sweepID string, paramsKey string) string {
	return hashParts("%s|%s", sweepID, paramsKey)
}

package domain

import "time"

// EquitySnapshot represents account equity sampled at a point in time.
// Corresponds to account_equity table in PostgreSQL.
// Keyed by Timestamp; a re-sample at the same instant replaces the prior
// value (last write wins), unlike bars and trades which are append-once.
type EquitySnapshot struct {
	Timestamp time.Time // sample time, UTC
	Equity    float64   // account equity value
}

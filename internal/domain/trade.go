package domain

import "time"

// Trade represents a fill record emitted by strategy execution.
// Corresponds to live_trades table in PostgreSQL.
// Natural key is (Strategy, Timestamp, Symbol).
type Trade struct {
	Strategy  string    // strategy that produced the fill
	Timestamp time.Time // fill time, UTC
	Symbol    string
	Side      string // "buy" | "sell"
	Qty       int64
	Price     float64
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

package domain

import "time"

// Bar represents one OHLCV observation for a symbol.
// Corresponds to live_prices table in PostgreSQL.
// Natural key is (Symbol, Timestamp); bars are never mutated after insert.
type Bar struct {
	Symbol    string    // ticker symbol, e.g. "AAPL"
	Timestamp time.Time // bar time, UTC, second resolution
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64 // traded volume, >= 0
}

// Key returns the natural key of the bar as a composite string.
func (b *Bar) Key() string {
	return b.Symbol + "|" + b.Timestamp.UTC().Format(time.RFC3339)
}

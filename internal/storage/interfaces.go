package storage

import (
	"context"
	"time"

	"market-feed-lab/internal/domain"
)

// BarStore provides access to live_prices storage.
type BarStore interface {
	// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp)
	// exists; the stored bar is never overwritten (first write wins).
	Insert(ctx context.Context, b *domain.Bar) error

	// Latest retrieves the most recent bar for a symbol.
	// Returns ErrNotFound if no bars exist for the symbol.
	Latest(ctx context.Context, symbol string) (*domain.Bar, error)

	// LastTimestamp returns the most recent bar timestamp for a symbol.
	// Returns ErrNotFound if no bars exist for the symbol.
	LastTimestamp(ctx context.Context, symbol string) (time.Time, error)

	// GetByTimeRange retrieves bars for a symbol within [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error)
}

// TradeStore provides access to live_trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if
	// (strategy, timestamp, symbol) exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByStrategy retrieves all trades for a strategy, ordered by timestamp ASC.
	GetByStrategy(ctx context.Context, strategy string) ([]*domain.Trade, error)
}

// EquityStore provides access to account_equity storage.
type EquityStore interface {
	// Upsert inserts or replaces the equity snapshot for its timestamp.
	// Equity is sampled, not appended-once: last write wins.
	Upsert(ctx context.Context, s *domain.EquitySnapshot) error

	// GetByTimeRange retrieves snapshots within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.EquitySnapshot, error)
}

// BarArchiveStore provides access to the bar_archive timeseries used for
// dashboard range queries. Unlike BarStore it is batch-oriented and does
// not enforce uniqueness at insert time.
type BarArchiveStore interface {
	// InsertBatch adds multiple bars in one round trip.
	InsertBatch(ctx context.Context, bars []*domain.Bar) error

	// GetByTimeRange retrieves archived bars for a symbol within
	// [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error)
}

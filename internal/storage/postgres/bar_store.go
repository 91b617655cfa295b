package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// BarStore implements storage.BarStore using PostgreSQL.
type BarStore struct {
	pool *Pool
}

// NewBarStore creates a new BarStore.
func NewBarStore(pool *Pool) *BarStore {
	return &BarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp) exists.
// The stored row is never overwritten: first write wins.
func (s *BarStore) Insert(ctx context.Context, b *domain.Bar) error {
	query := `
		INSERT INTO live_prices (symbol, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		b.Symbol,
		b.Timestamp.UTC(),
		b.Open,
		b.High,
		b.Low,
		b.Close,
		b.Volume,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bar: %w", err)
	}
	return nil
}

// Latest retrieves the most recent bar for a symbol.
// Returns ErrNotFound if no bars exist for the symbol.
func (s *BarStore) Latest(ctx context.Context, symbol string) (*domain.Bar, error) {
	query := `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM live_prices
		WHERE symbol = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var b domain.Bar
	err := s.pool.QueryRow(ctx, query, symbol).Scan(
		&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest bar: %w", err)
	}

	b.Timestamp = b.Timestamp.UTC()
	return &b, nil
}

// LastTimestamp returns the most recent bar timestamp for a symbol.
// Returns ErrNotFound if no bars exist for the symbol.
func (s *BarStore) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	query := `
		SELECT MAX(timestamp)
		FROM live_prices
		WHERE symbol = $1
	`

	var ts *time.Time
	if err := s.pool.QueryRow(ctx, query, symbol).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("get last bar timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, storage.ErrNotFound
	}
	return ts.UTC(), nil
}

// GetByTimeRange retrieves bars for a symbol within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	query := `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM live_prices
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get bars by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// scanBars scans multiple rows into a slice of Bar.
func scanBars(rows pgx.Rows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar

		err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// BarArchiveStore implements storage.BarArchiveStore using ClickHouse.
// The archive mirrors live_prices for dashboard range queries; MergeTree
// does not enforce uniqueness, so duplicate delivery produces duplicate
// rows that ReplacingMergeTree collapses at merge time.
type BarArchiveStore struct {
	conn *Conn
}

// NewBarArchiveStore creates a new BarArchiveStore.
func NewBarArchiveStore(conn *Conn) *BarArchiveStore {
	return &BarArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarArchiveStore = (*BarArchiveStore)(nil)

// InsertBatch adds multiple bars in one round trip.
func (s *BarArchiveStore) InsertBatch(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bar_archive (symbol, timestamp, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			b.Symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, uint64(b.Volume),
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

// GetByTimeRange retrieves archived bars for a symbol within [start, end] (inclusive).
func (s *BarArchiveStore) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	query := `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM bar_archive FINAL
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// scanBars scans multiple rows into a slice of Bar.
func scanBars(rows driver.Rows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var (
			b      domain.Bar
			volume uint64
		)

		err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &volume)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		b.Timestamp = b.Timestamp.UTC()
		b.Volume = int64(volume)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}

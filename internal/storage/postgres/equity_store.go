package postgres

import (
	"context"
	"fmt"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// EquityStore implements storage.EquityStore using PostgreSQL.
type EquityStore struct {
	pool *Pool
}

// NewEquityStore creates a new EquityStore.
func NewEquityStore(pool *Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EquityStore = (*EquityStore)(nil)

// Upsert inserts or replaces the equity snapshot for its timestamp.
// Equity is sampled, not appended-once: last write wins.
func (s *EquityStore) Upsert(ctx context.Context, snap *domain.EquitySnapshot) error {
	query := `
		INSERT INTO account_equity (timestamp, equity)
		VALUES ($1, $2)
		ON CONFLICT (timestamp) DO UPDATE SET equity = EXCLUDED.equity
	`

	_, err := s.pool.Exec(ctx, query, snap.Timestamp.UTC(), snap.Equity)
	if err != nil {
		return fmt.Errorf("upsert equity snapshot: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive).
func (s *EquityStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.EquitySnapshot, error) {
	query := `
		SELECT timestamp, equity
		FROM account_equity
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get equity by time range: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.EquitySnapshot
	for rows.Next() {
		var snap domain.EquitySnapshot

		if err := rows.Scan(&snap.Timestamp, &snap.Equity); err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}

		snap.Timestamp = snap.Timestamp.UTC()
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}

	return snaps, nil
}

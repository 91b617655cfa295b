package postgres

import (
	"context"
	"fmt"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if
// (strategy, timestamp, symbol) exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO live_trades (strategy_name, timestamp, symbol, side, qty, price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Strategy,
		t.Timestamp.UTC(),
		t.Symbol,
		t.Side,
		t.Qty,
		t.Price,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByStrategy retrieves all trades for a strategy, ordered by timestamp ASC.
func (s *TradeStore) GetByStrategy(ctx context.Context, strategy string) ([]*domain.Trade, error) {
	query := `
		SELECT strategy_name, timestamp, symbol, side, qty, price
		FROM live_trades
		WHERE strategy_name = $1
		ORDER BY timestamp ASC, symbol ASC
	`

	rows, err := s.pool.Query(ctx, query, strategy)
	if err != nil {
		return nil, fmt.Errorf("get trades by strategy: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade

		err := rows.Scan(&t.Strategy, &t.Timestamp, &t.Symbol, &t.Side, &t.Qty, &t.Price)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Timestamp = t.Timestamp.UTC()
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}

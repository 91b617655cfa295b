package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

func testTrade(strategy, symbol string, ts time.Time) *domain.Trade {
	return &domain.Trade{
		Strategy:  strategy,
		Timestamp: ts,
		Symbol:    symbol,
		Side:      domain.TradeSideBuy,
		Qty:       10,
		Price:     190.0,
	}
}

func TestTradeStore_InsertAndGetByStrategy(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testTrade("momentum", "MSFT", base.Add(time.Minute))))
	require.NoError(t, store.Insert(ctx, testTrade("momentum", "AAPL", base)))
	require.NoError(t, store.Insert(ctx, testTrade("meanrev", "AAPL", base)))

	trades, err := store.GetByStrategy(ctx, "momentum")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, "AAPL", trades[0].Symbol)
	assert.Equal(t, "MSFT", trades[1].Symbol)
	assert.Equal(t, domain.TradeSideBuy, trades[0].Side)
}

func TestTradeStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testTrade("momentum", "AAPL", ts)))

	dup := testTrade("momentum", "AAPL", ts)
	dup.Price = 999.0
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same instant under a different strategy is a distinct trade.
	require.NoError(t, store.Insert(ctx, testTrade("meanrev", "AAPL", ts)))
}

func TestTradeStore_RejectsInvalidSide(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()

	trade := testTrade("momentum", "AAPL", time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC))
	trade.Side = "short"

	err := store.Insert(ctx, trade)
	assert.Error(t, err)
}

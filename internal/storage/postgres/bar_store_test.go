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

func testBar(symbol string, ts time.Time, close float64) *domain.Bar {
	return &domain.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      close - 0.5,
		High:      close + 0.5,
		Low:       close - 1.0,
		Close:     close,
		Volume:    120500,
	}
}

func TestBarStore_InsertAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	// Insert out of order; Latest must pick the max timestamp.
	require.NoError(t, store.Insert(ctx, testBar("AAPL", base.Add(time.Minute), 190.5)))
	require.NoError(t, store.Insert(ctx, testBar("AAPL", base, 190.0)))
	require.NoError(t, store.Insert(ctx, testBar("AAPL", base.Add(2*time.Minute), 191.0)))

	latest, err := store.Latest(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", latest.Symbol)
	assert.True(t, latest.Timestamp.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, 191.0, latest.Close)
	assert.Equal(t, int64(120500), latest.Volume)
}

func TestBarStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testBar("AAPL", ts, 190.0)))

	// Redelivery with different values must not overwrite.
	err := store.Insert(ctx, testBar("AAPL", ts, 999.0))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	latest, err := store.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, latest.Close)
}

func TestBarStore_SameTimestampDifferentSymbols(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testBar("AAPL", ts, 190.0)))
	require.NoError(t, store.Insert(ctx, testBar("MSFT", ts, 417.0)))
}

func TestBarStore_LatestNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)

	_, err := store.Latest(context.Background(), "AAPL")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBarStore_LastTimestamp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	_, err := store.LastTimestamp(ctx, "AAPL")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Insert(ctx, testBar("AAPL", base, 190.0)))
	require.NoError(t, store.Insert(ctx, testBar("AAPL", base.Add(time.Minute), 190.5)))

	last, err := store.LastTimestamp(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, last.Equal(base.Add(time.Minute)))
}

func TestBarStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(ctx, testBar("AAPL", base.Add(time.Duration(i)*time.Minute), 190.0+float64(i))))
	}
	require.NoError(t, store.Insert(ctx, testBar("MSFT", base.Add(time.Minute), 417.0)))

	bars, err := store.GetByTimeRange(ctx, "AAPL", base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, bars, 3)

	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i-1].Timestamp.Before(bars[i].Timestamp), "bars must be ordered ASC")
	}
	for _, b := range bars {
		assert.Equal(t, "AAPL", b.Symbol)
	}
}

func TestBarStore_RejectsNegativeVolume(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(pool)
	ctx := context.Background()

	b := testBar("AAPL", time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), 190.0)
	b.Volume = -1

	err := store.Insert(ctx, b)
	assert.Error(t, err)
}

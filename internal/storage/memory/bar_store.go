package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bar // keyed by (symbol, timestamp)
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]*domain.Bar),
	}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp)
// exists; the stored bar keeps its first-written values.
func (s *BarStore) Insert(_ context.Context, b *domain.Bar) error {
	if b == nil || b.Symbol == "" || b.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	key := b.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *b
	copy.Timestamp = copy.Timestamp.UTC()
	s.data[key] = &copy
	return nil
}

// Latest retrieves the most recent bar for a symbol.
func (s *BarStore) Latest(_ context.Context, symbol string) (*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Bar
	for _, b := range s.data {
		if b.Symbol != symbol {
			continue
		}
		if latest == nil || b.Timestamp.After(latest.Timestamp) {
			latest = b
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

// LastTimestamp returns the most recent bar timestamp for a symbol.
func (s *BarStore) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	latest, err := s.Latest(ctx, symbol)
	if err != nil {
		return time.Time{}, err
	}
	return latest.Timestamp, nil
}

// GetByTimeRange retrieves bars for a symbol within [start, end] (inclusive),
// ordered by timestamp ASC.
func (s *BarStore) GetByTimeRange(_ context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for _, b := range s.data {
		if b.Symbol != symbol {
			continue
		}
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		copy := *b
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

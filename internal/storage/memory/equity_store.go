package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// EquityStore is an in-memory implementation of storage.EquityStore.
type EquityStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.EquitySnapshot // keyed by unix timestamp
}

// NewEquityStore creates a new in-memory equity store.
func NewEquityStore() *EquityStore {
	return &EquityStore{
		data: make(map[int64]*domain.EquitySnapshot),
	}
}

// Compile-time interface check.
var _ storage.EquityStore = (*EquityStore)(nil)

// Upsert inserts or replaces the equity snapshot for its timestamp.
func (s *EquityStore) Upsert(_ context.Context, snap *domain.EquitySnapshot) error {
	if snap == nil || snap.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *snap
	copy.Timestamp = copy.Timestamp.UTC()
	s.data[copy.Timestamp.Unix()] = &copy
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive),
// ordered by timestamp ASC.
func (s *EquityStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.EquitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EquitySnapshot
	for _, snap := range s.data {
		if snap.Timestamp.Before(start) || snap.Timestamp.After(end) {
			continue
		}
		copy := *snap
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by (strategy, timestamp, symbol)
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// tradeKey generates a unique key for a trade.
func tradeKey(strategy string, ts time.Time, symbol string) string {
	return fmt.Sprintf("%s|%s|%s", strategy, ts.UTC().Format(time.RFC3339), symbol)
}

// Insert adds a new trade. Returns ErrDuplicateKey if
// (strategy, timestamp, symbol) exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.Strategy == "" || t.Symbol == "" || t.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	key := tradeKey(t.Strategy, t.Timestamp, t.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	copy.Timestamp = copy.Timestamp.UTC()
	s.data[key] = &copy
	return nil
}

// GetByStrategy retrieves all trades for a strategy, ordered by timestamp ASC.
func (s *TradeStore) GetByStrategy(_ context.Context, strategy string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Strategy == strategy {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].Symbol < result[j].Symbol
	})

	return result, nil
}

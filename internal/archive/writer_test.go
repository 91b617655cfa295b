package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market-feed-lab/internal/domain"
)

// fakeArchiveStore records batches and optionally fails the first flush.
type fakeArchiveStore struct {
	mu       sync.Mutex
	batches  [][]*domain.Bar
	failures int
}

func (s *fakeArchiveStore) InsertBatch(ctx context.Context, bars []*domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("clickhouse: connection refused")
	}
	batch := make([]*domain.Bar, len(bars))
	copy(batch, bars)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeArchiveStore) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	return nil, nil
}

func (s *fakeArchiveStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func archiveBar(i int) domain.Bar {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	return domain.Bar{
		Symbol:    "AAPL",
		Timestamp: base.Add(time.Duration(i) * time.Minute),
		Open:      190.0,
		High:      191.0,
		Low:       189.5,
		Close:     190.5,
		Volume:    1000,
	}
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	store := &fakeArchiveStore{}
	w := NewWriter(store, Config{BatchSize: 3, FlushInterval: time.Hour})
	defer w.Close()

	for i := 0; i < 3; i++ {
		w.Push(archiveBar(i))
	}

	deadline := time.Now().Add(time.Second)
	for store.total() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 archived bars, got %d", store.total())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriter_FlushesOnInterval(t *testing.T) {
	store := &fakeArchiveStore{}
	w := NewWriter(store, Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	defer w.Close()

	w.Push(archiveBar(0))

	deadline := time.Now().Add(time.Second)
	for store.total() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("partial batch never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriter_CloseFlushesRemainder(t *testing.T) {
	store := &fakeArchiveStore{}
	w := NewWriter(store, Config{BatchSize: 100, FlushInterval: time.Hour})

	for i := 0; i < 5; i++ {
		w.Push(archiveBar(i))
	}
	w.Close()

	if store.total() != 5 {
		t.Errorf("expected 5 archived bars after Close, got %d", store.total())
	}

	// Pushes after Close are dropped, not archived.
	w.Push(archiveBar(6))
	if store.total() != 5 {
		t.Errorf("push after Close should be dropped")
	}
}

func TestWriter_DropsFailedBatch(t *testing.T) {
	store := &fakeArchiveStore{failures: 1}
	w := NewWriter(store, Config{BatchSize: 2, FlushInterval: time.Hour})
	defer w.Close()

	// First batch fails and is dropped; second succeeds.
	for i := 0; i < 4; i++ {
		w.Push(archiveBar(i))
	}

	deadline := time.Now().Add(time.Second)
	for store.total() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 archived bars, got %d", store.total())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if store.total() != 2 {
		t.Errorf("failed batch should be dropped, got %d bars", store.total())
	}
}

func TestWriter_CloseIdempotent(t *testing.T) {
	w := NewWriter(&fakeArchiveStore{}, Config{})
	w.Close()
	w.Close()
}

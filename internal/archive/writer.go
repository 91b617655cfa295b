package archive

import (
	"context"
	"log"
	"sync"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/observability"
	"market-feed-lab/internal/storage"
)

// Config configures a Writer.
type Config struct {
	// BatchSize triggers a flush once this many bars are buffered.
	// Defaults to 100.
	BatchSize int

	// FlushInterval flushes a partial batch after this much idle time.
	// Defaults to 5s.
	FlushInterval time.Duration

	// FlushTimeout bounds a single InsertBatch call. Defaults to 10s.
	FlushTimeout time.Duration

	Logger *log.Logger
}

// Writer batches bars into the analytics archive. Archival is best
// effort: a failed flush is logged and the batch is dropped, so the
// live ingestion path never backs up behind the archive.
type Writer struct {
	store storage.BarArchiveStore
	cfg   Config

	logger *log.Logger

	mu     sync.Mutex
	buf    []*domain.Bar
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWriter creates a Writer and starts its flush loop.
func NewWriter(store storage.BarArchiveStore, cfg Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	w := &Writer{
		store:  store,
		cfg:    cfg,
		logger: logger,
		buf:    make([]*domain.Bar, 0, cfg.BatchSize),
		done:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()
	return w
}

// Push buffers one bar for archival. Safe for concurrent use; bars
// pushed after Close are dropped.
func (w *Writer) Push(bar domain.Bar) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	b := bar
	w.buf = append(w.buf, &b)
	var batch []*domain.Bar
	if len(w.buf) >= w.cfg.BatchSize {
		batch = w.takeLocked()
	}
	w.mu.Unlock()

	if batch != nil {
		w.flush(batch)
	}
}

// Close flushes any buffered bars and stops the flush loop. Idempotent.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.wg.Wait()
		return
	}
	w.closed = true
	batch := w.takeLocked()
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()

	if batch != nil {
		w.flush(batch)
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			batch := w.takeLocked()
			w.mu.Unlock()
			if batch != nil {
				w.flush(batch)
			}
		}
	}
}

// takeLocked swaps out the buffer. Caller holds w.mu.
func (w *Writer) takeLocked() []*domain.Bar {
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = make([]*domain.Bar, 0, w.cfg.BatchSize)
	return batch
}

func (w *Writer) flush(batch []*domain.Bar) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	if err := w.store.InsertBatch(ctx, batch); err != nil {
		observability.RecordArchiveError()
		w.logger.Printf("[archive] flush %d bars: %v", len(batch), err)
		return
	}
	observability.RecordBarsArchived(len(batch))
}

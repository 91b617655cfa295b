package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/feed"
	"market-feed-lab/internal/observability"
	"market-feed-lab/internal/storage"
)

// PrimaryClient is the extra capability the supervisor needs from the
// primary feed beyond feed.Client: a bounded wait for the first bar.
type PrimaryClient interface {
	feed.Client
	WaitStreaming(ctx context.Context) error
}

// Options configures a Supervisor.
type Options struct {
	// PrimaryEnabled controls whether the primary feed is attempted at
	// all. When false the session runs on the fallback relay from the
	// start.
	PrimaryEnabled bool

	// StreamingTimeout bounds how long the primary gets to reach a
	// streaming state before the session falls back. Defaults to 10s.
	StreamingTimeout time.Duration

	// NewPrimary builds the primary feed client. Required when
	// PrimaryEnabled is set.
	NewPrimary func() PrimaryClient

	// NewFallback builds the fallback relay client. Required.
	NewFallback func() feed.Client

	// Bars receives every bar delivered by the active feed.
	Bars storage.BarStore

	// Downstream, if set, is invoked after persistence for every bar,
	// including duplicates the store rejected.
	Downstream feed.Handler

	// Symbols and StaleAfter drive the startup gap check: symbols whose
	// stored history is older than StaleAfter get a warning. Zero
	// StaleAfter disables the check.
	Symbols    []string
	StaleAfter time.Duration

	// BridgeSize is the hand-off queue capacity between the feed and
	// the persistence consumer.
	BridgeSize int

	Logger *log.Logger
}

// Supervisor owns feed selection for one session. It tries the primary
// once, falls back permanently on any failure, and pumps every
// delivered bar through a bounded bridge into the bar store.
type Supervisor struct {
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	active  feed.Client
	bridge  *Bridge
}

// New creates a Supervisor. Start must be called before bars flow.
func New(opts Options) *Supervisor {
	if opts.StreamingTimeout <= 0 {
		opts.StreamingTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// Start selects a feed and begins ingesting. The selection is sticky:
// once the fallback is active it stays active until Stop, even if the
// primary would have recovered.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("supervisor: already started")
	}
	if s.stopped {
		return errors.New("supervisor: stopped")
	}
	if s.opts.Bars == nil {
		return errors.New("supervisor: bar store is required")
	}
	if s.opts.NewFallback == nil {
		return errors.New("supervisor: fallback factory is required")
	}

	s.logGaps()

	s.bridge = NewBridge(s.opts.BridgeSize)
	s.bridge.Start(s.consume)
	handler := feed.Handler(s.bridge.Push)

	if s.opts.PrimaryEnabled && s.opts.NewPrimary != nil {
		primary := s.opts.NewPrimary()
		if err := s.tryPrimary(primary, handler); err == nil {
			s.active = primary
			s.started = true
			observability.SetActiveSource("primary")
			s.logger.Printf("[supervisor] primary feed streaming")
			return nil
		}
		observability.RecordFailover()
	}

	fallback := s.opts.NewFallback()
	if err := fallback.Start(handler); err != nil {
		s.bridge.Close()
		return fmt.Errorf("start fallback feed: %w", err)
	}
	s.active = fallback
	s.started = true
	observability.SetActiveSource("fallback")
	s.logger.Printf("[supervisor] fallback feed active for the rest of the session")
	return nil
}

func (s *Supervisor) tryPrimary(primary PrimaryClient, handler feed.Handler) error {
	if err := primary.Start(handler); err != nil {
		s.logger.Printf("[supervisor] primary feed start failed: %v; falling back", err)
		primary.Stop()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StreamingTimeout)
	defer cancel()
	if err := primary.WaitStreaming(ctx); err != nil {
		s.logger.Printf("[supervisor] primary feed did not reach streaming: %v; falling back", err)
		primary.Stop()
		return err
	}
	return nil
}

// consume persists one bar and forwards it downstream. Runs on the
// bridge consumer goroutine so a slow store cannot stall the feed's
// network goroutine past the queue capacity.
func (s *Supervisor) consume(bar domain.Bar) {
	err := s.opts.Bars.Insert(context.Background(), &bar)
	switch {
	case err == nil:
		observability.RecordBarPersisted()
	case errors.Is(err, storage.ErrDuplicateKey):
		// Expected under redelivery; the first write wins.
		observability.RecordDuplicateBar()
	default:
		observability.RecordPersistenceError()
		s.logger.Printf("[supervisor] persist bar %s@%s: %v",
			bar.Symbol, bar.Timestamp.Format(time.RFC3339), err)
	}

	if s.opts.Downstream != nil {
		s.opts.Downstream(bar)
	}
}

// logGaps warns about symbols whose stored history is stale. Best
// effort only: there is no backfill, the operator decides what to do.
func (s *Supervisor) logGaps() {
	if s.opts.StaleAfter <= 0 || len(s.opts.Symbols) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	for _, sym := range s.opts.Symbols {
		last, err := s.opts.Bars.LastTimestamp(ctx, sym)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.logger.Printf("[supervisor] no stored bars for %s yet", sym)
		case err != nil:
			s.logger.Printf("[supervisor] last timestamp for %s: %v", sym, err)
		case now.Sub(last) > s.opts.StaleAfter:
			s.logger.Printf("[supervisor] %s history is stale: last bar %s (%s ago)",
				sym, last.Format(time.RFC3339), now.Sub(last).Truncate(time.Second))
		}
	}
}

// Stop shuts down the active feed and drains the bridge. Idempotent;
// calling Stop before Start is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if !s.started {
		return
	}

	if s.active != nil {
		s.active.Stop()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	s.logger.Printf("[supervisor] stopped")
}

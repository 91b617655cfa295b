package supervisor

import (
	"sync"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/observability"
)

// Bridge is the bounded hand-off between feed network goroutines and
// the single consumer that persists and forwards bars. It decouples feed
// liveness from downstream latency: the feed only blocks once the queue
// is full.
type Bridge struct {
	ch   chan domain.Bar
	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewBridge creates a bridge with the given queue size.
func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = 256
	}
	return &Bridge{
		ch:   make(chan domain.Bar, size),
		quit: make(chan struct{}),
	}
}

// Start begins draining the queue into consume on a dedicated goroutine.
func (b *Bridge) Start(consume func(domain.Bar)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case bar := <-b.ch:
				observability.SetBridgeDepth(len(b.ch))
				consume(bar)
			case <-b.quit:
				// Drain whatever the feeds managed to enqueue.
				for {
					select {
					case bar := <-b.ch:
						consume(bar)
					default:
						return
					}
				}
			}
		}
	}()
}

// Push enqueues a bar from a feed goroutine. Blocks while the queue is
// full so delivery stays at-least-once; bars pushed after Close are
// dropped.
func (b *Bridge) Push(bar domain.Bar) {
	select {
	case b.ch <- bar:
	case <-b.quit:
	}
}

// Close stops the consumer after draining and waits for it to exit.
// Idempotent.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.quit)
	})
	b.wg.Wait()
}

// Depth returns the number of queued bars.
func (b *Bridge) Depth() int {
	return len(b.ch)
}

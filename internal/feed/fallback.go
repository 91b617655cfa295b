package feed

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/observability"
)

// ErrNoMessage is returned by a Receiver when no relay frame arrived
// within the poll timeout. The loop treats it as idle, not an error.
var ErrNoMessage = errors.New("feed: no message available")

// Receiver yields raw relay frames. The redis pub/sub implementation is
// the production transport; tests substitute an in-memory one.
type Receiver interface {
	// Receive waits up to timeout for the next frame.
	// Returns ErrNoMessage when nothing arrived in time.
	Receive(timeout time.Duration) (string, error)

	// Close releases the subscription and underlying connection.
	Close() error
}

// FallbackConfig configures the pub/sub relay client.
type FallbackConfig struct {
	// Addr is the relay address (redis host:port).
	Addr string
	// Channel is the relay pub/sub channel carrying bar frames.
	Channel string
	// Topic is the subscription filter; frames whose topic segment does
	// not start with it are discarded.
	Topic string
	// IdleInterval is the sleep between polls when no message is available.
	IdleInterval time.Duration
	// ErrorBackoff is the sleep after a transient transport error.
	ErrorBackoff time.Duration
	// PollTimeout bounds a single receive attempt.
	PollTimeout time.Duration
	// Logger receives loop and parse logs. Defaults to log.Default().
	Logger *log.Logger
}

// FallbackClient subscribes to a pub/sub relay carrying bars published
// by an upstream producer and emits the same normalized bar shape as the
// primary client.
//
// Each relay frame is a single string "<topic> <json>". Malformed frames
// are discarded silently; parse failures and transport errors are logged
// and retried forever. Only Stop ends the loop.
type FallbackClient struct {
	cfg     FallbackConfig
	logger  *log.Logger
	recv    Receiver
	handler Handler

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFallbackClient creates a fallback client over the redis relay.
func NewFallbackClient(cfg FallbackConfig) *FallbackClient {
	return newFallbackClient(cfg, nil)
}

// NewFallbackClientWithReceiver creates a fallback client over a custom
// receiver. Used by tests to feed raw frames without a relay.
func NewFallbackClientWithReceiver(cfg FallbackConfig, recv Receiver) *FallbackClient {
	return newFallbackClient(cfg, recv)
}

func newFallbackClient(cfg FallbackConfig, recv Receiver) *FallbackClient {
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = 500 * time.Millisecond
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 1 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &FallbackClient{
		cfg:    cfg,
		logger: logger,
		recv:   recv,
		done:   make(chan struct{}),
	}
}

// Compile-time interface check.
var _ Client = (*FallbackClient)(nil)

// Start subscribes to the relay and begins the receive loop on a
// dedicated goroutine.
func (c *FallbackClient) Start(handler Handler) error {
	if c.closed.Load() {
		return ErrClientStopped
	}
	c.handler = handler

	if c.recv == nil {
		c.recv = newRedisReceiver(c.cfg.Addr, c.cfg.Channel)
	}
	c.logger.Printf("fallback feed subscribed: addr=%s channel=%s topic=%s",
		c.cfg.Addr, c.cfg.Channel, c.cfg.Topic)

	c.wg.Add(1)
	go c.receiveLoop()
	return nil
}

// Stop unblocks the receive loop, closes the receiver and joins the
// loop goroutine. Safe to call multiple times and before Start.
func (c *FallbackClient) Stop() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	if c.recv != nil {
		if err := c.recv.Close(); err != nil {
			c.logger.Printf("fallback feed: close receiver: %v", err)
		}
	}
	c.wg.Wait()
	c.logger.Printf("fallback feed stopped")
}

// receiveLoop polls the relay until Stop. The loop never terminates
// itself: all receive-side faults are transient.
func (c *FallbackClient) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		frame, err := c.recv.Receive(c.cfg.PollTimeout)
		switch {
		case err == nil:
			c.dispatch(frame)
		case errors.Is(err, ErrNoMessage):
			c.sleep(c.cfg.IdleInterval)
		default:
			if c.closed.Load() {
				return
			}
			observability.RecordTransportFault()
			c.logger.Printf("fallback feed: receive error: %v", err)
			c.sleep(c.cfg.ErrorBackoff)
		}
	}
}

// dispatch parses one relay frame and invokes the handler.
func (c *FallbackClient) dispatch(frame string) {
	// Frame format: "<topic> <json>". Anything else is discarded.
	parts := strings.SplitN(frame, " ", 2)
	if len(parts) != 2 {
		return
	}
	if !strings.HasPrefix(parts[0], c.cfg.Topic) {
		return
	}

	var p relayPayload
	if err := json.Unmarshal([]byte(parts[1]), &p); err != nil {
		observability.RecordParseError()
		c.logger.Printf("fallback feed: bad payload on %s: %v", parts[0], err)
		return
	}

	ts, err := parseRelayTimestamp(p.Timestamp)
	if err != nil {
		observability.RecordParseError()
		c.logger.Printf("fallback feed: bad timestamp %q: %v", p.Timestamp, err)
		return
	}

	observability.RecordBarReceived("fallback")
	c.handler(domain.Bar{
		Symbol:    p.Symbol,
		Timestamp: ts,
		Open:      p.Open,
		High:      p.High,
		Low:       p.Low,
		Close:     p.Close,
		Volume:    p.Volume,
	})
}

func (c *FallbackClient) sleep(d time.Duration) {
	select {
	case <-c.done:
	case <-time.After(d):
	}
}

// relayPayload is the JSON half of a relay frame.
type relayPayload struct {
	Symbol    string  `json:"symbol"`
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// parseRelayTimestamp accepts ISO-8601 timestamps with or without a zone
// designator; zoneless values are taken as UTC.
func parseRelayTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

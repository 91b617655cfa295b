package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"market-feed-lab/internal/domain"
	"market-feed-lab/internal/observability"
)

// PrimaryConfig configures the primary push-stream client.
type PrimaryConfig struct {
	// URL is the provider websocket endpoint.
	URL string
	// Key and Secret are sent in the auth message on connection open.
	Key    string
	Secret string
	// Symbols to subscribe bars for.
	Symbols []string
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration
	// WriteTimeout bounds outgoing control and request frames.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// Logger receives connection lifecycle logs. Defaults to log.Default().
	Logger *log.Logger
}

// PrimaryClient maintains an authenticated, subscription-based push
// connection to a market-data provider and emits normalized bars.
//
// Lifecycle: Disconnected -> Connecting -> AuthPending -> Subscribing ->
// Streaming -> Closing -> {Closed, Failed}. Any transport error or
// provider error frame moves the client to Failed; failures are never
// retried here - the supervisor owns failover.
type PrimaryClient struct {
	cfg     PrimaryConfig
	logger  *log.Logger
	handler Handler
	symbols map[string]struct{}

	conn   *websocket.Conn
	connMu sync.Mutex

	state atomic.Int32

	// outcome is closed exactly once, when the client either reaches
	// Streaming (failure == nil) or fails before that (failure != nil).
	outcome     chan struct{}
	failure     error
	resolveOnce sync.Once

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPrimaryClient creates a primary feed client. It does not connect.
func NewPrimaryClient(cfg PrimaryConfig) *PrimaryClient {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}

	return &PrimaryClient{
		cfg:     cfg,
		logger:  logger,
		symbols: symbols,
		outcome: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Compile-time interface check.
var _ Client = (*PrimaryClient)(nil)

// State returns the current connection state.
func (c *PrimaryClient) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *PrimaryClient) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Start dials the provider, sends the auth message and begins the read
// loop on a dedicated goroutine. Use WaitStreaming to bound the wait for
// the Streaming state.
func (c *PrimaryClient) Start(handler Handler) error {
	if c.closed.Load() {
		return ErrClientStopped
	}
	c.handler = handler
	c.setState(StateConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}
	conn, _, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		c.fail(terr)
		return terr
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Credentials go out immediately on open.
	if err := c.writeJSON(authRequest{Action: "auth", Key: c.cfg.Key, Secret: c.cfg.Secret}); err != nil {
		terr := &TransportError{Op: "write auth", Err: err}
		c.fail(terr)
		c.closeConn()
		return terr
	}
	c.setState(StateAuthPending)
	c.logger.Printf("primary feed connected to %s, auth sent", c.cfg.URL)

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return nil
}

// WaitStreaming blocks until the client reaches Streaming, fails, is
// stopped, or ctx expires. A deadline expiry is reported as
// ErrStreamingTimeout; the caller treats it like any other failure.
func (c *PrimaryClient) WaitStreaming(ctx context.Context) error {
	select {
	case <-c.outcome:
		return c.failure
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrStreamingTimeout
		}
		return ctx.Err()
	}
}

// Stop closes the transport and joins the network goroutines. Safe to
// call multiple times and from any state, including before Start.
func (c *PrimaryClient) Stop() {
	if c.closed.Swap(true) {
		return
	}

	if c.State() != StateFailed {
		c.setState(StateClosing)
	}
	close(c.done)

	// Unblock any WaitStreaming caller.
	c.resolveOnce.Do(func() {
		c.failure = ErrClientStopped
		close(c.outcome)
	})

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	if c.State() == StateClosing {
		c.setState(StateClosed)
	}
	c.logger.Printf("primary feed stopped (state=%s)", c.State())
}

// fail records the first failure, moves to Failed and resolves the
// streaming outcome. Closes initiated by Stop are not failures.
func (c *PrimaryClient) fail(err error) {
	if c.closed.Load() {
		return
	}
	c.setState(StateFailed)
	c.logger.Printf("primary feed failed: %v", err)
	c.resolveOnce.Do(func() {
		c.failure = err
		close(c.outcome)
	})
}

// resolveStreaming marks the successful outcome exactly once.
func (c *PrimaryClient) resolveStreaming() {
	c.resolveOnce.Do(func() {
		close(c.outcome)
	})
}

// readLoop reads provider frames until the connection closes.
func (c *PrimaryClient) readLoop() {
	defer c.wg.Done()

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.fail(&TransportError{Op: "read", Err: err})
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage processes one incoming websocket message: a JSON array
// of provider frames. Unknown frame types are ignored, not errors.
func (c *PrimaryClient) handleMessage(message []byte) {
	var frames []providerFrame
	if err := json.Unmarshal(message, &frames); err != nil {
		c.logger.Printf("primary feed: discarding unparseable message: %v", err)
		return
	}

	for i := range frames {
		c.handleFrame(&frames[i])
	}
}

func (c *PrimaryClient) handleFrame(f *providerFrame) {
	switch f.T {
	case "error":
		// Fatal. The state decides which failure to surface.
		if c.State() == StateAuthPending {
			c.fail(&AuthError{Code: f.Code, Msg: f.Msg})
		} else {
			c.fail(&SubscriptionError{Code: f.Code, Msg: f.Msg})
		}
		c.closeConn()

	case "success":
		if f.Msg == "authenticated" && c.State() == StateAuthPending {
			if err := c.writeJSON(subscribeRequest{Action: "subscribe", Bars: c.cfg.Symbols}); err != nil {
				c.fail(&TransportError{Op: "write subscribe", Err: err})
				c.closeConn()
				return
			}
			c.setState(StateSubscribing)
			c.logger.Printf("primary feed authenticated, subscribing to bars: %v", c.cfg.Symbols)
		}

	case "subscription":
		// Informational only; streaming starts with the first data frame.
		c.logger.Printf("primary feed subscription confirmed: bars=%v", f.Bars)

	case "b":
		if _, ok := c.symbols[f.S]; !ok {
			return
		}
		ts, err := time.Parse(time.RFC3339, f.Time)
		if err != nil {
			c.logger.Printf("primary feed: bad bar timestamp %q: %v", f.Time, err)
			return
		}

		if c.State() == StateSubscribing {
			c.setState(StateStreaming)
			c.resolveStreaming()
			c.logger.Printf("primary feed streaming (first bar for %s)", f.S)
		}

		observability.RecordBarReceived("primary")
		c.handler(domain.Bar{
			Symbol:    f.S,
			Timestamp: ts.UTC(),
			Open:      f.O,
			High:      f.H,
			Low:       f.L,
			Close:     f.C,
			Volume:    f.V,
		})
	}
}

// writeJSON sends a request frame under the connection write deadline.
func (c *PrimaryClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// closeConn closes the transport so the read loop observes EOF and exits.
func (c *PrimaryClient) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *PrimaryClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will surface it
				}
			}
			c.connMu.Unlock()
		}
	}
}

// Provider wire types. The consumed subset of the provider protocol:
// error, success, subscription and bar frames, always delivered as a
// JSON array.

type providerFrame struct {
	T    string   `json:"T"`
	Code int      `json:"code,omitempty"`
	Msg  string   `json:"msg,omitempty"`
	Bars []string `json:"bars,omitempty"`
	S    string   `json:"S,omitempty"`
	O    float64  `json:"o,omitempty"`
	H    float64  `json:"h,omitempty"`
	L    float64  `json:"l,omitempty"`
	C    float64  `json:"c,omitempty"`
	V    int64    `json:"v,omitempty"`
	Time string   `json:"t,omitempty"`
}

type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars"`
}

package feed

import (
	"errors"
	"sync"
	"testing"
	"time"

	"market-feed-lab/internal/domain"
)

// scriptReceiver replays a fixed sequence of frames, then reports idle.
type scriptReceiver struct {
	mu     sync.Mutex
	frames []string
	closed bool
}

func (r *scriptReceiver) Receive(timeout time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", errors.New("receiver closed")
	}
	if len(r.frames) == 0 {
		return "", ErrNoMessage
	}
	frame := r.frames[0]
	r.frames = r.frames[1:]
	return frame, nil
}

func (r *scriptReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func collectBars(t *testing.T, recv Receiver, want int) []domain.Bar {
	t.Helper()

	client := NewFallbackClientWithReceiver(FallbackConfig{
		Topic:        "market_data",
		IdleInterval: 10 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
	}, recv)

	barCh := make(chan domain.Bar, 16)
	if err := client.Start(func(b domain.Bar) { barCh <- b }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer client.Stop()

	var bars []domain.Bar
	deadline := time.After(2 * time.Second)
	for len(bars) < want {
		select {
		case b := <-barCh:
			bars = append(bars, b)
		case <-deadline:
			t.Fatalf("timeout: got %d bars, want %d", len(bars), want)
		}
	}

	// Give the loop a beat to prove nothing extra arrives.
	select {
	case b := <-barCh:
		t.Errorf("unexpected extra bar for %s", b.Symbol)
	case <-time.After(100 * time.Millisecond):
	}
	return bars
}

func TestFallbackClient_SkipsMalformedFrames(t *testing.T) {
	recv := &scriptReceiver{frames: []string{
		"garbage",
		`market_data.AAPL {"symbol": "AAPL", "timestamp": "2025-06-02T14:30:00", "open": 99.5, "high": 100.5, "low": 99.0, "close": 100.0, "volume": 1000}`,
	}}

	bars := collectBars(t, recv, 1)

	bar := bars[0]
	if bar.Symbol != "AAPL" {
		t.Errorf("expected AAPL, got %s", bar.Symbol)
	}
	if bar.Close != 100.0 {
		t.Errorf("expected close 100.0, got %v", bar.Close)
	}
	if bar.Volume != 1000 {
		t.Errorf("expected volume 1000, got %d", bar.Volume)
	}
	if !bar.Timestamp.Equal(time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %s", bar.Timestamp)
	}
}

func TestFallbackClient_SkipsBadPayloads(t *testing.T) {
	recv := &scriptReceiver{frames: []string{
		// Invalid JSON payload: logged and skipped.
		`market_data.AAPL {not json}`,
		// Wrong topic prefix: silently discarded.
		`other_topic.AAPL {"symbol": "AAPL", "timestamp": "2025-06-02T14:30:00", "open": 1, "high": 1, "low": 1, "close": 1, "volume": 1}`,
		// Unparseable timestamp: logged and skipped.
		`market_data.AAPL {"symbol": "AAPL", "timestamp": "yesterday", "open": 1, "high": 1, "low": 1, "close": 1, "volume": 1}`,
		`market_data.MSFT {"symbol": "MSFT", "timestamp": "2025-06-02T14:31:00Z", "open": 417.0, "high": 418.2, "low": 416.5, "close": 417.9, "volume": 2200}`,
	}}

	bars := collectBars(t, recv, 1)

	if bars[0].Symbol != "MSFT" {
		t.Errorf("expected MSFT, got %s", bars[0].Symbol)
	}
}

func TestFallbackClient_RecoversFromReceiveErrors(t *testing.T) {
	recv := &flakyReceiver{
		errs: 2,
		frame: `market_data.AAPL {"symbol": "AAPL", "timestamp": "2025-06-02T14:30:00Z",` +
			` "open": 99.5, "high": 100.5, "low": 99.0, "close": 100.0, "volume": 1000}`,
	}

	bars := collectBars(t, recv, 1)

	if bars[0].Symbol != "AAPL" {
		t.Errorf("expected AAPL, got %s", bars[0].Symbol)
	}
}

// flakyReceiver fails a fixed number of times before delivering one frame.
type flakyReceiver struct {
	mu    sync.Mutex
	errs  int
	frame string
	sent  bool
}

func (r *flakyReceiver) Receive(timeout time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs > 0 {
		r.errs--
		return "", errors.New("connection reset")
	}
	if r.sent {
		return "", ErrNoMessage
	}
	r.sent = true
	return r.frame, nil
}

func (r *flakyReceiver) Close() error { return nil }

func TestFallbackClient_StopIdempotent(t *testing.T) {
	recv := &scriptReceiver{}

	client := NewFallbackClientWithReceiver(FallbackConfig{
		Topic:        "market_data",
		IdleInterval: 10 * time.Millisecond,
	}, recv)

	if err := client.Start(func(domain.Bar) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client.Stop()
	client.Stop()

	if err := client.Start(func(domain.Bar) {}); !errors.Is(err, ErrClientStopped) {
		t.Errorf("expected ErrClientStopped from Start after Stop, got %v", err)
	}
}

func TestFallbackClient_StopBeforeStart(t *testing.T) {
	client := NewFallbackClientWithReceiver(FallbackConfig{Topic: "market_data"}, &scriptReceiver{})
	client.Stop()
	client.Stop()
}

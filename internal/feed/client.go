// Package feed provides live market-data clients: an authenticated
// push-stream primary and a pub/sub relay fallback. Both emit the same
// normalized bar shape through a registered handler.
package feed

import "market-feed-lab/internal/domain"

// Handler receives normalized bars from a feed client. It is invoked on
// the client's network goroutine: at-least-once, no ordering guarantee
// across symbols, so implementations must stay fast or hand off.
type Handler func(bar domain.Bar)

// Client is the capability shared by the primary and fallback feeds.
// The supervisor selects one variant per session.
type Client interface {
	// Start registers the handler and begins streaming on a dedicated
	// goroutine. It does not block waiting for data.
	Start(handler Handler) error

	// Stop closes the transport, joins the network goroutine and is safe
	// to call multiple times and from any state, including before Start.
	Stop()
}

// ConnState is the connection lifecycle state of the primary client.
type ConnState int32

// Primary client states, in normal progression order.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthPending
	StateSubscribing
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

// String returns the state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

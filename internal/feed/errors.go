package feed

import (
	"errors"
	"fmt"
)

// Primary-path errors are fatal to the client instance that produced them.
// The supervisor is the sole failover authority; clients never retry.
var (
	// ErrStreamingTimeout is returned by WaitStreaming when the client did
	// not reach the Streaming state before the caller's deadline.
	ErrStreamingTimeout = errors.New("feed: timed out waiting for streaming state")

	// ErrClientStopped is returned by WaitStreaming when Stop was called
	// before the client reached the Streaming state.
	ErrClientStopped = errors.New("feed: client stopped")
)

// AuthError reports a provider rejection during authentication.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("feed: authentication failed: code=%d msg=%q", e.Code, e.Msg)
}

// SubscriptionError reports a provider rejection after authentication.
type SubscriptionError struct {
	Code int
	Msg  string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("feed: subscription failed: code=%d msg=%q", e.Code, e.Msg)
}

// TransportError reports a transport-level failure or unexpected close.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("feed: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

package feed

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisReceiver implements Receiver over a redis pub/sub subscription.
// The upstream producer publishes full "<topic> <json>" frames onto one
// relay channel; topic filtering happens client-side.
type redisReceiver struct {
	client *redis.Client
	pubsub *redis.PubSub
}

func newRedisReceiver(addr, channel string) *redisReceiver {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pubsub := client.Subscribe(context.Background(), channel)
	return &redisReceiver{client: client, pubsub: pubsub}
}

// Compile-time interface check.
var _ Receiver = (*redisReceiver)(nil)

// Receive waits up to timeout for the next published frame.
func (r *redisReceiver) Receive(timeout time.Duration) (string, error) {
	msg, err := r.pubsub.ReceiveTimeout(context.Background(), timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", ErrNoMessage
		}
		return "", err
	}

	switch m := msg.(type) {
	case *redis.Message:
		return m.Payload, nil
	default:
		// Subscription acks and pongs carry no frame.
		return "", ErrNoMessage
	}
}

// Close releases the subscription and the client connection.
func (r *redisReceiver) Close() error {
	subErr := r.pubsub.Close()
	if err := r.client.Close(); err != nil {
		return err
	}
	return subErr
}

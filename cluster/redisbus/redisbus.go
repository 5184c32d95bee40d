// Package redisbus implements cluster.Bus on Redis Pub/Sub. It is the
// cluster-wide counterpart of persistent/redisstore: both use the same
// go-redis/v8 client, grounded on the teacher's examples/cluster wiring
// of a Redis-backed persistence layer alongside a gossip transport.
package redisbus

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Bus is a cluster.Bus backed by a Redis client's Pub/Sub commands.
type Bus struct {
	db *redis.Client
}

// New wraps an already-connected *redis.Client.
func New(db *redis.Client) *Bus {
	return &Bus{db: db}
}

// Open connects to Redis using opts and returns a ready Bus.
func Open(ctx context.Context, opts *redis.Options) (*Bus, error) {
	db := redis.NewClient(opts)
	if _, err := db.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redisbus: ping: %w", err)
	}
	return &Bus{db: db}, nil
}

// Close closes the underlying Redis client.
func (b *Bus) Close() error { return b.db.Close() }

// Publish publishes payload on channel via Redis PUBLISH.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.db.Publish(ctx, channel, payload).Err()
}

// Subscribe subscribes to channel via Redis SUBSCRIBE. The returned
// channel is closed when ctx is done, at which point the underlying
// Redis subscription is also closed.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.db.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redisbus: subscribe %q: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

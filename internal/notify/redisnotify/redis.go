// Package redisnotify pushes increment events onto a Redis list so
// downstream consumers can BRPOP them off.
package redisnotify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pkt.systems/countd/internal/notify"
)

// Config configures the Redis notifier.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string
	// Key is the list key events are pushed to.
	Key string
	// Client overrides URL when supplied (used by tests and for sharing a
	// client with the redis store).
	Client redis.UniversalClient
}

// Notifier implements notify.Notifier with LPUSH.
type Notifier struct {
	client    redis.UniversalClient
	key       string
	ownClient bool
}

// New connects to Redis according to cfg.
func New(cfg Config) (*Notifier, error) {
	key := cfg.Key
	if key == "" {
		key = "countd:events"
	}
	if cfg.Client != nil {
		return &Notifier{client: cfg.Client, key: key}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisnotify: parse url: %w", err)
	}
	return &Notifier{client: redis.NewClient(opts), key: key, ownClient: true}, nil
}

// Publish pushes the encoded event.
func (n *Notifier) Publish(ctx context.Context, event notify.Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("redisnotify: encode: %w", err)
	}
	if err := n.client.LPush(ctx, n.key, payload).Err(); err != nil {
		return fmt.Errorf("redisnotify: lpush: %w", err)
	}
	return nil
}

// Close releases the client when this notifier owns it.
func (n *Notifier) Close() error {
	if !n.ownClient {
		return nil
	}
	return n.client.Close()
}

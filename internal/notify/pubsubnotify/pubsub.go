// Package pubsubnotify publishes increment events to a Google Cloud Pub/Sub
// topic.
package pubsubnotify

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"pkt.systems/pslog"

	"pkt.systems/countd/internal/notify"
)

// Config configures the Pub/Sub notifier.
type Config struct {
	ProjectID string
	Topic     string
	Logger    pslog.Logger
	// OnError is invoked for asynchronous publish failures (after Publish has
	// already returned). Optional.
	OnError func(error)
}

// publishResult is the part of pubsub.PublishResult the collector needs.
type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// Notifier implements notify.Notifier on a Pub/Sub topic. Publish is
// fire-and-forget: results are awaited on a background goroutine so the
// increment path never blocks on the broker.
type Notifier struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	logger  pslog.Logger
	onError func(error)

	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	results chan publishResult
}

// New connects to Pub/Sub and starts the result collector.
func New(ctx context.Context, cfg Config) (*Notifier, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("pubsubnotify: project and topic required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsubnotify: new client: %w", err)
	}
	n := &Notifier{
		client:  client,
		topic:   client.Topic(cfg.Topic),
		logger:  logger,
		onError: cfg.OnError,
		results: make(chan publishResult, 64),
	}
	n.wg.Add(1)
	go n.collect()
	return n, nil
}

func (n *Notifier) collect() {
	defer n.wg.Done()
	for res := range n.results {
		n.resolve(res)
	}
}

func (n *Notifier) resolve(res publishResult) {
	if _, err := res.Get(context.Background()); err != nil {
		n.logger.Warn("notify.publish.failed", "error", err)
		if n.onError != nil {
			n.onError(err)
		}
	}
}

// enqueue hands res to the collector. When the backlog is full the result is
// resolved on its own goroutine instead; the caller never waits on the
// broker. Callers hold n.mu.
func (n *Notifier) enqueue(res publishResult) {
	select {
	case n.results <- res:
	default:
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.resolve(res)
		}()
	}
}

// Publish enqueues the event. The returned error covers only local encoding
// and shutdown races; broker errors surface asynchronously via the logger and
// OnError.
func (n *Notifier) Publish(ctx context.Context, event notify.Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("pubsubnotify: encode: %w", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("pubsubnotify: notifier closed")
	}
	n.enqueue(n.topic.Publish(ctx, &pubsub.Message{Data: payload}))
	return nil
}

// Close stops the topic, drains pending results and releases the client.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	n.topic.Stop()
	close(n.results)
	n.wg.Wait()
	return n.client.Close()
}

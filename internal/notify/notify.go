// Package notify defines the fire-and-forget notification contract invoked
// after every successful increment, plus in-process implementations.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"pkt.systems/pslog"
)

// Marker is the static message summary downstream consumers key on.
const Marker = "new increment"

// Event describes one successful increment.
type Event struct {
	// Message is always Marker; kept explicit so the wire payload is
	// self-describing.
	Message string `json:"message"`
	// UserID identifies the counter that moved.
	UserID string `json:"user_id"`
	// Increments is the counter value after the increment.
	Increments int64 `json:"increments"`
	// OccurredAt is the server-side publish time.
	OccurredAt time.Time `json:"occurred_at"`
}

// Encode renders the event payload as JSON.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier publishes increment events. Publish failures never fail the
// increment that triggered them; callers log and count them instead.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Log is a Notifier that only logs events; the default when no queue is
// configured.
type Log struct {
	Logger pslog.Logger
}

// Publish logs the event.
func (l *Log) Publish(_ context.Context, event Event) error {
	logger := l.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger.Info("notify.event",
		"message", event.Message,
		"user_id", event.UserID,
		"increments", event.Increments,
	)
	return nil
}

// Close satisfies Notifier.
func (l *Log) Close() error { return nil }

// Channel delivers events to a buffered channel; used by tests and by
// embedders that consume notifications in process.
type Channel struct {
	ch chan Event
}

// NewChannel returns a Channel notifier with the supplied buffer size.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 16
	}
	return &Channel{ch: make(chan Event, buffer)}
}

// Events exposes the delivery channel.
func (c *Channel) Events() <-chan Event { return c.ch }

// Publish delivers the event or drops it when the buffer is full; a slow
// consumer must not block the increment path.
func (c *Channel) Publish(_ context.Context, event Event) error {
	select {
	case c.ch <- event:
	default:
	}
	return nil
}

// Close satisfies Notifier. The channel is left open so drains do not race.
func (c *Channel) Close() error { return nil }

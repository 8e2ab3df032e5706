// Package counter implements the increment and query operations on top of a
// store backend and a notification queue.
package counter

import (
	"context"
	"fmt"

	"pkt.systems/pslog"

	"pkt.systems/countd/internal/clock"
	"pkt.systems/countd/internal/metrics"
	"pkt.systems/countd/internal/notify"
	"pkt.systems/countd/internal/store"
)

// Config wires the service's collaborators.
type Config struct {
	Backend  store.Backend
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   pslog.Logger
	Clock    clock.Clock
}

// Service owns the counter operations. It is stateless per request; all
// shared state lives in the backend.
type Service struct {
	backend  store.Backend
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   pslog.Logger
	clock    clock.Clock
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("counter: backend required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = &notify.Log{Logger: logger}
	}
	return &Service{
		backend:  cfg.Backend,
		notifier: notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
		clock:    clk,
	}, nil
}

// Increment atomically adds one to the caller's counter, creating the record
// when absent, and publishes a notification. The notification is
// fire-and-forget: its failure is logged and counted but never fails the
// increment.
func (s *Service) Increment(ctx context.Context, userID, email string) (int64, error) {
	count, err := store.Increment(ctx, s.backend, store.IncrementRequest{
		UserID: userID,
		Delta:  1,
		Email:  email,
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", userID, err)
	}
	if s.metrics != nil {
		s.metrics.Increments.Inc()
	}
	s.publish(ctx, userID, count)
	return count, nil
}

func (s *Service) publish(ctx context.Context, userID string, count int64) {
	event := notify.Event{
		Message:    notify.Marker,
		UserID:     userID,
		Increments: count,
		OccurredAt: s.clock.Now(),
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		logger := pslog.LoggerFromContext(ctx)
		if logger == nil {
			logger = s.logger
		}
		logger.Warn("notify.publish.failed", "user_id", userID, "error", err)
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
	}
}

// NotifyFailed records an asynchronous publish failure reported by a
// notifier after Publish already returned.
func (s *Service) NotifyFailed(err error) {
	s.logger.Warn("notify.publish.failed", "error", err)
	if s.metrics != nil {
		s.metrics.NotifyFailures.Inc()
	}
}

// Get returns the caller's record; store.ErrNotFound when no increment has
// ever been recorded for userID.
func (s *Service) Get(ctx context.Context, userID string) (store.Record, error) {
	res, err := s.backend.Get(ctx, userID)
	if err != nil {
		return store.Record{}, err
	}
	return res.Record, nil
}

// List returns every counter record sorted by user id.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	return s.backend.List(ctx)
}

// Top returns the record with the highest counter, or store.ErrNoData when
// the store is empty.
func (s *Service) Top(ctx context.Context) (store.Record, error) {
	return store.Top(ctx, s.backend)
}

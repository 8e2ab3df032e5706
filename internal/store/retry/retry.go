// Package retry wraps a store.Backend with bounded exponential backoff on
// transient errors.
package retry

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/countd/internal/clock"
	"pkt.systems/countd/internal/store"
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Wrap returns a backend that retries transient errors according to cfg.
func Wrap(inner store.Backend, logger pslog.Logger, clk clock.Clock, cfg Config) store.Backend {
	if inner == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &backend{inner: inner, logger: logger, clock: clk, cfg: cfg}
}

type backend struct {
	inner  store.Backend
	logger pslog.Logger
	clock  clock.Clock
	cfg    Config
}

func (b *backend) Get(ctx context.Context, userID string) (store.RecordResult, error) {
	var result store.RecordResult
	err := b.withRetry(ctx, "get", userID, func(ctx context.Context) error {
		var err error
		result, err = b.inner.Get(ctx, userID)
		return err
	})
	return result, err
}

func (b *backend) Put(ctx context.Context, userID string, record store.Record, expectedETag string) (string, error) {
	var newETag string
	err := b.withRetry(ctx, "put", userID, func(ctx context.Context) error {
		var err error
		newETag, err = b.inner.Put(ctx, userID, record, expectedETag)
		return err
	})
	return newETag, err
}

func (b *backend) List(ctx context.Context) ([]store.Record, error) {
	var records []store.Record
	err := b.withRetry(ctx, "list", "", func(ctx context.Context) error {
		var err error
		records, err = b.inner.List(ctx)
		return err
	})
	return records, err
}

func (b *backend) IncrementBy(ctx context.Context, req store.IncrementRequest) (int64, error) {
	inc, ok := b.inner.(store.AtomicIncrementer)
	if !ok {
		return 0, store.ErrNotImplemented
	}
	var count int64
	err := b.withRetry(ctx, "increment", req.UserID, func(ctx context.Context) error {
		var err error
		count, err = inc.IncrementBy(ctx, req)
		return err
	})
	return count, err
}

func (b *backend) Top(ctx context.Context) (store.Record, error) {
	provider, ok := b.inner.(store.TopProvider)
	if !ok {
		return store.Record{}, store.ErrNotImplemented
	}
	var record store.Record
	err := b.withRetry(ctx, "top", "", func(ctx context.Context) error {
		var err error
		record, err = provider.Top(ctx)
		return err
	})
	return record, err
}

func (b *backend) Close() error {
	return b.inner.Close()
}

func (b *backend) withRetry(ctx context.Context, op, userID string, fn func(context.Context) error) error {
	attempts := b.cfg.MaxAttempts
	delay := b.cfg.BaseDelay
	if attempts <= 1 {
		return fn(ctx)
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !store.IsTransient(err) || attempt == attempts {
			return err
		}
		b.logger.Warn("store transient error",
			"operation", op,
			"user_id", userID,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.clock.Sleep(delay)
			next := time.Duration(float64(delay) * b.cfg.Multiplier)
			if b.cfg.MaxDelay > 0 && next > b.cfg.MaxDelay {
				next = b.cfg.MaxDelay
			}
			delay = next
		}
	}
	return lastErr
}

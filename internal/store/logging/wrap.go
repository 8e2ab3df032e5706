// Package logging decorates a store.Backend with per-operation debug logging.
package logging

import (
	"context"
	"errors"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/countd/internal/store"
)

type backend struct {
	inner  store.Backend
	logger pslog.Logger
}

// Wrap decorates inner with trace/debug logging.
func Wrap(inner store.Backend, logger pslog.Logger) store.Backend {
	if inner == nil {
		return nil
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &backend{inner: inner, logger: logger}
}

func (b *backend) log(ctx context.Context, op, userID string, begin time.Time, err error) {
	logger := b.logger
	if ctxLogger := pslog.LoggerFromContext(ctx); ctxLogger != nil {
		logger = ctxLogger
	}
	logger = logger.With(
		"operation", op,
		"elapsed", time.Since(begin),
	)
	if userID != "" {
		logger = logger.With("user_id", userID)
	}
	switch {
	case err == nil:
		logger.Trace("store.operation")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNoData), errors.Is(err, store.ErrCASMismatch):
		logger.Trace("store.operation.miss", "reason", err)
	default:
		logger.Debug("store.operation.failed", "error", err)
	}
}

func (b *backend) Get(ctx context.Context, userID string) (store.RecordResult, error) {
	begin := time.Now()
	result, err := b.inner.Get(ctx, userID)
	b.log(ctx, "get", userID, begin, err)
	return result, err
}

func (b *backend) Put(ctx context.Context, userID string, record store.Record, expectedETag string) (string, error) {
	begin := time.Now()
	etag, err := b.inner.Put(ctx, userID, record, expectedETag)
	b.log(ctx, "put", userID, begin, err)
	return etag, err
}

func (b *backend) List(ctx context.Context) ([]store.Record, error) {
	begin := time.Now()
	records, err := b.inner.List(ctx)
	b.log(ctx, "list", "", begin, err)
	return records, err
}

func (b *backend) IncrementBy(ctx context.Context, req store.IncrementRequest) (int64, error) {
	inc, ok := b.inner.(store.AtomicIncrementer)
	if !ok {
		return 0, store.ErrNotImplemented
	}
	begin := time.Now()
	count, err := inc.IncrementBy(ctx, req)
	b.log(ctx, "increment", req.UserID, begin, err)
	return count, err
}

func (b *backend) Top(ctx context.Context) (store.Record, error) {
	provider, ok := b.inner.(store.TopProvider)
	if !ok {
		return store.Record{}, store.ErrNotImplemented
	}
	begin := time.Now()
	record, err := provider.Top(ctx)
	b.log(ctx, "top", "", begin, err)
	return record, err
}

func (b *backend) Close() error {
	return b.inner.Close()
}

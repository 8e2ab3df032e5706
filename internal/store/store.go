// Package store defines the counter persistence contract shared by every
// backend, plus the atomic increment and leaderboard helpers built on top of
// it.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by all backends.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrCASMismatch    = errors.New("store: cas mismatch")
	ErrNoData         = errors.New("store: no data")
	ErrNotImplemented = errors.New("store: not implemented")
	// ErrContention signals that the CAS increment loop exhausted its attempt
	// budget without landing a write.
	ErrContention = errors.New("store: increment contention")
)

// Record is one user's counter row.
type Record struct {
	// UserID is the primary key; opaque, stable, immutable.
	UserID string `json:"user_id"`
	// Email is recorded when the counter is created and never rewritten by
	// the increment path.
	Email string `json:"email,omitempty"`
	// Counter is the number of increments; never observed to decrease.
	Counter int64 `json:"counter"`
}

// RecordResult pairs a record with the ETag backends use for CAS writes.
type RecordResult struct {
	Record Record
	ETag   string
}

// Backend is the minimal contract a counter store must satisfy. Writes use
// ETag CAS: an empty expectedETag enforces create-only semantics and fails
// with ErrCASMismatch when the record already exists; a non-empty expectedETag
// must match the stored ETag or the write fails with ErrCASMismatch.
type Backend interface {
	// Get returns the record for userID or ErrNotFound.
	Get(ctx context.Context, userID string) (RecordResult, error)
	// Put writes the record under CAS semantics and returns the new ETag.
	Put(ctx context.Context, userID string, record Record, expectedETag string) (string, error)
	// List returns every record sorted by user id. Unbounded by design.
	List(ctx context.Context) ([]Record, error)
	// Close releases backend resources.
	Close() error
}

// IncrementRequest describes one atomic counter add.
type IncrementRequest struct {
	UserID string
	Delta  int64
	// Email is persisted only when the increment creates the record; an
	// existing email is never overwritten.
	Email string
}

// AtomicIncrementer is an optional backend capability: a native
// add-with-create-if-absent primitive that is indivisible with respect to
// concurrent increments on the same key.
type AtomicIncrementer interface {
	IncrementBy(ctx context.Context, req IncrementRequest) (int64, error)
}

// TopProvider is an optional backend capability: an ordered secondary view
// answering "highest counter" without a full scan. Returns ErrNoData when the
// store is empty.
type TopProvider interface {
	Top(ctx context.Context) (Record, error)
}

// casIncrementAttempts bounds the compare-and-swap fallback loop. Contention
// on a single user's counter is expected to be rare and short-lived.
const casIncrementAttempts = 8

// Increment applies req atomically. Backends exposing a native atomic add are
// used directly; everything else goes through a bounded CAS retry loop so two
// concurrent increments are both reflected (no lost updates).
func Increment(ctx context.Context, backend Backend, req IncrementRequest) (int64, error) {
	if backend == nil {
		return 0, ErrNotImplemented
	}
	if req.UserID == "" {
		return 0, fmt.Errorf("store: user id required")
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	if inc, ok := backend.(AtomicIncrementer); ok {
		count, err := inc.IncrementBy(ctx, req)
		// Decorators forward the capability even when the wrapped backend
		// lacks it; fall through to the CAS loop in that case.
		if !errors.Is(err, ErrNotImplemented) {
			return count, err
		}
	}
	return casIncrement(ctx, backend, req)
}

func casIncrement(ctx context.Context, backend Backend, req IncrementRequest) (int64, error) {
	for attempt := 0; attempt < casIncrementAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := backend.Get(ctx, req.UserID)
		if errors.Is(err, ErrNotFound) {
			record := Record{UserID: req.UserID, Email: req.Email, Counter: req.Delta}
			if _, err := backend.Put(ctx, req.UserID, record, ""); err != nil {
				if errors.Is(err, ErrCASMismatch) {
					// Lost the create race; reload and add on top.
					continue
				}
				return 0, err
			}
			return record.Counter, nil
		}
		if err != nil {
			return 0, err
		}
		record := res.Record
		record.Counter += req.Delta
		if _, err := backend.Put(ctx, req.UserID, record, res.ETag); err != nil {
			if errors.Is(err, ErrCASMismatch) || errors.Is(err, ErrNotFound) {
				continue
			}
			return 0, err
		}
		return record.Counter, nil
	}
	return 0, ErrContention
}

// Top returns the record with the highest counter, using the backend's ordered
// view when available and a full scan otherwise. Ties resolve to the
// lexicographically smaller user id so results are deterministic.
func Top(ctx context.Context, backend Backend) (Record, error) {
	if backend == nil {
		return Record{}, ErrNotImplemented
	}
	if provider, ok := backend.(TopProvider); ok {
		record, err := provider.Top(ctx)
		if !errors.Is(err, ErrNotImplemented) {
			return record, err
		}
	}
	records, err := backend.List(ctx)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNoData
	}
	top := records[0]
	for _, record := range records[1:] {
		if record.Counter > top.Counter {
			top = record
		}
	}
	return top, nil
}

type transientError struct {
	err error
}

func (t transientError) Error() string { return t.err.Error() }
func (t transientError) Unwrap() error { return t.err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked as retryable.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

// Package redisstore implements store.Backend on Redis. The counter record
// lives in a hash per user and every write mirrors the counter into a sorted
// set, giving the leaderboard a real ordered secondary index.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pkt.systems/countd/internal/store"
)

const (
	fieldCounter = "counter"
	fieldEmail   = "email"
	fieldETag    = "etag"
)

// Config configures the Redis store.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string
	// KeyPrefix namespaces every key written by this store.
	KeyPrefix string
	// Client overrides URL when supplied (used by tests).
	Client redis.UniversalClient
}

// Store implements store.Backend, store.AtomicIncrementer and
// store.TopProvider on Redis.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	ownClient bool
}

// New connects to Redis according to cfg.
func New(cfg Config) (*Store, error) {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "countd"
	}
	if cfg.Client != nil {
		return &Store{client: cfg.Client, prefix: prefix}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return &Store{client: redis.NewClient(opts), prefix: prefix, ownClient: true}, nil
}

// Close releases the client when this store owns it.
func (s *Store) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *Store) boardKey() string {
	return s.prefix + ":board"
}

// Get returns the record for userID or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string) (store.RecordResult, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return store.RecordResult{}, store.NewTransientError(fmt.Errorf("redis: hgetall: %w", err))
	}
	if len(fields) == 0 {
		return store.RecordResult{}, store.ErrNotFound
	}
	record, etag, err := recordFromFields(userID, fields)
	if err != nil {
		return store.RecordResult{}, err
	}
	return store.RecordResult{Record: record, ETag: etag}, nil
}

// Put writes record under CAS semantics using an optimistic WATCH
// transaction. The atomic increment path does not use it; it exists so the
// backend satisfies the full contract.
func (s *Store) Put(ctx context.Context, userID string, record store.Record, expectedETag string) (string, error) {
	key := s.userKey(userID)
	newETag := uuid.NewString()
	record.UserID = userID
	txn := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return store.NewTransientError(fmt.Errorf("redis: hgetall: %w", err))
		}
		exists := len(fields) > 0
		if expectedETag != "" {
			if !exists {
				return store.ErrNotFound
			}
			if fields[fieldETag] != expectedETag {
				return store.ErrCASMismatch
			}
		} else if exists {
			return store.ErrCASMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldCounter, strconv.FormatInt(record.Counter, 10),
				fieldEmail, record.Email,
				fieldETag, newETag,
			)
			pipe.ZAdd(ctx, s.boardKey(), redis.Z{Score: float64(record.Counter), Member: userID})
			return nil
		})
		return err
	}
	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return "", store.ErrCASMismatch
	}
	if err != nil {
		return "", err
	}
	return newETag, nil
}

// IncrementBy applies the native atomic add. HIncrBy creates the hash when
// absent, HSetNX records the email only on first write, and the sorted set
// mirrors the new score in the same MULTI/EXEC block.
func (s *Store) IncrementBy(ctx context.Context, req store.IncrementRequest) (int64, error) {
	delta := req.Delta
	if delta == 0 {
		delta = 1
	}
	key := s.userKey(req.UserID)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, fieldCounter, delta)
		if req.Email != "" {
			pipe.HSetNX(ctx, key, fieldEmail, req.Email)
		}
		pipe.HSet(ctx, key, fieldETag, uuid.NewString())
		pipe.ZIncrBy(ctx, s.boardKey(), float64(delta), req.UserID)
		return nil
	})
	if err != nil {
		return 0, store.NewTransientError(fmt.Errorf("redis: increment: %w", err))
	}
	return incr.Val(), nil
}

// List enumerates the leaderboard members and loads each record.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	userIDs, err := s.client.ZRange(ctx, s.boardKey(), 0, -1).Result()
	if err != nil {
		return nil, store.NewTransientError(fmt.Errorf("redis: zrange: %w", err))
	}
	out := make([]store.Record, 0, len(userIDs))
	for _, userID := range userIDs {
		res, err := s.Get(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, res.Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Top reads the highest-scored member from the sorted set. The float score is
// converted back to a plain integer at this boundary.
func (s *Store) Top(ctx context.Context) (store.Record, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, s.boardKey(), 0, 0).Result()
	if err != nil {
		return store.Record{}, store.NewTransientError(fmt.Errorf("redis: zrevrange: %w", err))
	}
	if len(entries) == 0 {
		return store.Record{}, store.ErrNoData
	}
	userID, _ := entries[0].Member.(string)
	record := store.Record{UserID: userID, Counter: int64(entries[0].Score)}
	if res, err := s.Get(ctx, userID); err == nil {
		record.Email = res.Record.Email
		record.Counter = res.Record.Counter
	}
	return record, nil
}

func recordFromFields(userID string, fields map[string]string) (store.Record, string, error) {
	record := store.Record{UserID: userID, Email: fields[fieldEmail]}
	if raw, ok := fields[fieldCounter]; ok && raw != "" {
		counter, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return store.Record{}, "", fmt.Errorf("redis: malformed counter for %s: %w", userID, err)
		}
		record.Counter = counter
	}
	return record, fields[fieldETag], nil
}

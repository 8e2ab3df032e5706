// Package disk implements store.Backend on a local directory, one JSON
// document per user. Writes go through a temp file and rename, with the ETag
// persisted alongside the record so CAS survives process restarts.
package disk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/countd/internal/store"
)

const recordSuffix = ".json"

// Config configures the disk store.
type Config struct {
	// Dir is the directory holding one document per user. Created when
	// missing.
	Dir string
	// NoSync skips fsync on commit; faster, but a crash may lose the most
	// recent write.
	NoSync bool
}

// Store implements store.Backend on the local filesystem.
type Store struct {
	dir    string
	noSync bool

	// mu serialises the read-check-write window of CAS puts. Cross-process
	// writers are out of scope for the disk backend.
	mu sync.Mutex
}

type envelope struct {
	ETag   string       `json:"etag"`
	Record store.Record `json:"record"`
}

// New opens (and creates when necessary) the directory backing the store.
func New(cfg Config) (*Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("disk: dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: create dir: %w", err)
	}
	return &Store{dir: dir, noSync: cfg.NoSync}, nil
}

// Close satisfies store.Backend.
func (s *Store) Close() error { return nil }

// Get reads the record for userID or returns store.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string) (store.RecordResult, error) {
	if err := ctx.Err(); err != nil {
		return store.RecordResult{}, err
	}
	env, err := s.read(userID)
	if err != nil {
		return store.RecordResult{}, err
	}
	return store.RecordResult{Record: env.Record, ETag: env.ETag}, nil
}

// Put writes record under CAS semantics and returns the new ETag.
func (s *Store) Put(ctx context.Context, userID string, record store.Record, expectedETag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.read(userID)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if expectedETag != "" {
		if !exists {
			return "", store.ErrNotFound
		}
		if current.ETag != expectedETag {
			return "", store.ErrCASMismatch
		}
	} else if exists {
		return "", store.ErrCASMismatch
	}
	record.UserID = userID
	env := envelope{ETag: uuid.NewString(), Record: record}
	if err := s.write(userID, env); err != nil {
		return "", err
	}
	return env.ETag, nil
}

// List scans the directory and returns every record sorted by user id.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, store.NewTransientError(fmt.Errorf("disk: read dir: %w", err))
	}
	var out []store.Record
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		userID, err := decodeName(strings.TrimSuffix(name, recordSuffix))
		if err != nil {
			continue
		}
		env, err := s.read(userID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, env.Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) path(userID string) string {
	return filepath.Join(s.dir, encodeName(userID)+recordSuffix)
}

func (s *Store) read(userID string) (envelope, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, store.ErrNotFound
	}
	if err != nil {
		return envelope{}, store.NewTransientError(fmt.Errorf("disk: read %s: %w", userID, err))
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("disk: decode %s: %w", userID, err)
	}
	return env, nil
}

func (s *Store) write(userID string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("disk: encode %s: %w", userID, err)
	}
	final := s.path(userID)
	tmp, err := os.CreateTemp(s.dir, encodeName(userID)+".tmp-*")
	if err != nil {
		return store.NewTransientError(fmt.Errorf("disk: temp file: %w", err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return store.NewTransientError(fmt.Errorf("disk: write %s: %w", userID, err))
	}
	if !s.noSync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return store.NewTransientError(fmt.Errorf("disk: sync %s: %w", userID, err))
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return store.NewTransientError(fmt.Errorf("disk: close %s: %w", userID, err))
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return store.NewTransientError(fmt.Errorf("disk: rename %s: %w", userID, err))
	}
	return nil
}

// encodeName maps an opaque user id onto a safe filename.
func encodeName(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

func decodeName(name string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

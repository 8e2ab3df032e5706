package disk

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/countd/internal/store"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := New(Config{Dir: dir, NoSync: true})
	if err != nil {
		t.Fatalf("open disk store: %v", err)
	}
	return s
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	ctx := context.Background()
	etag, err := s.Put(ctx, "user-a", store.Record{Email: "a@example.com", Counter: 3}, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	res, err := s.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.ETag != etag {
		t.Fatalf("etag mismatch: put %q, get %q", etag, res.ETag)
	}
	if res.Record.UserID != "user-a" || res.Record.Counter != 3 || res.Record.Email != "a@example.com" {
		t.Fatalf("unexpected record %+v", res.Record)
	}
}

func TestCASSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first := newTestStore(t, dir)
	etag, err := first.Put(ctx, "user-a", store.Record{Counter: 1}, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := newTestStore(t, dir)
	if _, err := second.Put(ctx, "user-a", store.Record{Counter: 2}, "stale"); !errors.Is(err, store.ErrCASMismatch) {
		t.Fatalf("expected ErrCASMismatch after reopen, got %v", err)
	}
	if _, err := second.Put(ctx, "user-a", store.Record{Counter: 2}, etag); err != nil {
		t.Fatalf("put with persisted etag: %v", err)
	}
}

func TestCreateOnlySemantics(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	ctx := context.Background()
	if _, err := s.Put(ctx, "user-a", store.Record{Counter: 1}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Put(ctx, "user-a", store.Record{Counter: 1}, ""); !errors.Is(err, store.ErrCASMismatch) {
		t.Fatalf("expected ErrCASMismatch on duplicate create, got %v", err)
	}
	if _, err := s.Put(ctx, "user-b", store.Record{}, "some-etag"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for CAS on missing record, got %v", err)
	}
}

func TestListHandlesUnusualUserIDs(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	ctx := context.Background()
	ids := []string{"plain", "with spaces", "sub|pipe/slash", "日本語"}
	for _, userID := range ids {
		if _, err := s.Put(ctx, userID, store.Record{Counter: 1}, ""); err != nil {
			t.Fatalf("put %q: %v", userID, err)
		}
	}
	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != len(ids) {
		t.Fatalf("expected %d records, got %d", len(ids), len(records))
	}
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		seen[record.UserID] = true
	}
	for _, userID := range ids {
		if !seen[userID] {
			t.Fatalf("user %q missing from list", userID)
		}
	}
}

func TestIncrementHelperUsesCASLoop(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		count, err := store.Increment(ctx, s, store.IncrementRequest{UserID: "user-a", Email: "a@example.com"})
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}
	res, err := s.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Record.Email != "a@example.com" {
		t.Fatalf("expected creation email preserved, got %q", res.Record.Email)
	}
}

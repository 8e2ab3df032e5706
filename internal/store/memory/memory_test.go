package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pkt.systems/countd/internal/store"
)

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutCreateOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "user-a", store.Record{Counter: 1}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Put(ctx, "user-a", store.Record{Counter: 9}, ""); !errors.Is(err, store.ErrCASMismatch) {
		t.Fatalf("expected ErrCASMismatch on duplicate create, got %v", err)
	}
}

func TestPutCASMismatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	etag, err := s.Put(ctx, "user-a", store.Record{Counter: 1}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Put(ctx, "user-a", store.Record{Counter: 2}, "stale"); !errors.Is(err, store.ErrCASMismatch) {
		t.Fatalf("expected ErrCASMismatch on stale etag, got %v", err)
	}
	if _, err := s.Put(ctx, "user-a", store.Record{Counter: 2}, etag); err != nil {
		t.Fatalf("put with matching etag: %v", err)
	}
	res, err := s.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Record.Counter != 2 {
		t.Fatalf("expected counter 2, got %d", res.Record.Counter)
	}
}

func TestPutCASMissingRecord(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "user-a", store.Record{}, "some-etag"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementByConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: "user-a", Delta: 1}); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()
	res, err := s.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Record.Counter != writers {
		t.Fatalf("expected %d increments, got %d", writers, res.Record.Counter)
	}
}

func TestIncrementByPreservesEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: "user-a", Email: "a@example.com"}); err != nil {
		t.Fatalf("create increment: %v", err)
	}
	if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: "user-a", Email: "other@example.com"}); err != nil {
		t.Fatalf("update increment: %v", err)
	}
	res, err := s.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Record.Email != "a@example.com" {
		t.Fatalf("email rewritten to %q", res.Record.Email)
	}
}

func TestTopTracksRunningMax(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Top(ctx); !errors.Is(err, store.ErrNoData) {
		t.Fatal("expected ErrNoData before any writes")
	}
	increments := map[string]int{"alice": 3, "bob": 7, "carol": 5}
	for userID, n := range increments {
		for i := 0; i < n; i++ {
			if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: userID}); err != nil {
				t.Fatalf("increment %s: %v", userID, err)
			}
		}
	}
	top, err := s.Top(ctx)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if top.UserID != "bob" || top.Counter != 7 {
		t.Fatalf("expected bob/7, got %s/%d", top.UserID, top.Counter)
	}
	// Overtake the leader.
	for i := 0; i < 5; i++ {
		if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: "alice"}); err != nil {
			t.Fatalf("increment alice: %v", err)
		}
	}
	top, err = s.Top(ctx)
	if err != nil {
		t.Fatalf("top after overtake: %v", err)
	}
	if top.UserID != "alice" || top.Counter != 8 {
		t.Fatalf("expected alice/8, got %s/%d", top.UserID, top.Counter)
	}
}

func TestTopAfterLeaderDemotion(t *testing.T) {
	s := New()
	ctx := context.Background()
	increments := map[string]int{"alice": 3, "bob": 7}
	for userID, n := range increments {
		for i := 0; i < n; i++ {
			if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: userID}); err != nil {
				t.Fatalf("increment %s: %v", userID, err)
			}
		}
	}
	res, err := s.Get(ctx, "bob")
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}
	// A direct Put may rewrite the leader with a lower counter; Top must not
	// keep serving the stale maximum.
	if _, err := s.Put(ctx, "bob", store.Record{Counter: 1}, res.ETag); err != nil {
		t.Fatalf("demote bob: %v", err)
	}
	top, err := s.Top(ctx)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if top.UserID != "alice" || top.Counter != 3 {
		t.Fatalf("expected alice/3 after demotion, got %s/%d", top.UserID, top.Counter)
	}
}

func TestTopTieBreaksOnUserID(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, userID := range []string{"zoe", "amy"} {
		if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: userID}); err != nil {
			t.Fatalf("increment %s: %v", userID, err)
		}
	}
	top, err := s.Top(ctx)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if top.UserID != "amy" {
		t.Fatalf("tie should resolve to the smaller user id, got %s", top.UserID)
	}
}

func TestListSorted(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, userID := range []string{"carol", "alice", "bob"} {
		if _, err := s.IncrementBy(ctx, store.IncrementRequest{UserID: userID}); err != nil {
			t.Fatalf("increment %s: %v", userID, err)
		}
	}
	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, userID := range want {
		if records[i].UserID != userID {
			t.Fatalf("position %d: expected %s, got %s", i, userID, records[i].UserID)
		}
	}
}

package counter

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/countd/internal/clock"
	"pkt.systems/countd/internal/metrics"
	"pkt.systems/countd/internal/notify"
	"pkt.systems/countd/internal/store"
	"pkt.systems/countd/internal/store/memory"
)

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) Publish(context.Context, notify.Event) error {
	n.calls++
	return errors.New("queue unavailable")
}

func (n *failingNotifier) Close() error { return nil }

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without backend")
	}
}

func TestIncrementPublishesEvent(t *testing.T) {
	channel := notify.NewChannel(4)
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, err := New(Config{Backend: memory.New(), Notifier: channel, Clock: clk})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	count, err := svc.Increment(context.Background(), "user-a", "a@example.com")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	select {
	case event := <-channel.Events():
		if event.Message != notify.Marker {
			t.Fatalf("unexpected message %q", event.Message)
		}
		if event.UserID != "user-a" || event.Increments != 1 {
			t.Fatalf("unexpected event %+v", event)
		}
		if !event.OccurredAt.Equal(clk.Now()) {
			t.Fatalf("expected event stamped with the service clock, got %v", event.OccurredAt)
		}
	default:
		t.Fatal("no event published")
	}
}

func TestIncrementSurvivesNotifyFailure(t *testing.T) {
	notifier := &failingNotifier{}
	ins := metrics.New()
	svc, err := New(Config{Backend: memory.New(), Notifier: notifier, Metrics: ins})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		count, err := svc.Increment(ctx, "user-a", "")
		if err != nil {
			t.Fatalf("increment %d must not fail on notify error: %v", i, err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}
	if notifier.calls != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", notifier.calls)
	}
	record, err := svc.Get(ctx, "user-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Counter != 3 {
		t.Fatalf("expected committed counter 3, got %d", record.Counter)
	}
}

func TestGetUnknownUser(t *testing.T) {
	svc, err := New(Config{Backend: memory.New(), Notifier: notify.NewChannel(1)})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Get(context.Background(), "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTopEmpty(t *testing.T) {
	svc, err := New(Config{Backend: memory.New(), Notifier: notify.NewChannel(1)})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Top(context.Background()); !errors.Is(err, store.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestListAndTop(t *testing.T) {
	svc, err := New(Config{Backend: memory.New(), Notifier: notify.NewChannel(16)})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	for userID, n := range map[string]int{"alice": 2, "bob": 5} {
		for i := 0; i < n; i++ {
			if _, err := svc.Increment(ctx, userID, ""); err != nil {
				t.Fatalf("increment %s: %v", userID, err)
			}
		}
	}
	records, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	top, err := svc.Top(ctx)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if top.UserID != "bob" || top.Counter != 5 {
		t.Fatalf("expected bob/5, got %s/%d", top.UserID, top.Counter)
	}
}

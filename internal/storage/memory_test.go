package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryCreateUserIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(nil)

	first, err := store.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if first.Score != 0 {
		t.Fatalf("new user score must be 0, got %d", first.Score)
	}

	if err := store.AdjustScore(ctx, "alice", 3); err != nil {
		t.Fatalf("adjust score: %v", err)
	}

	again, err := store.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("re-create user: %v", err)
	}
	if again.Score != 3 {
		t.Fatalf("re-create must return the existing record, got score %d", again.Score)
	}
}

func TestMemoryGetUserNotFound(t *testing.T) {
	store := NewMemory(nil)

	if _, err := store.GetUser(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.AdjustScore(context.Background(), "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on score adjust, got %v", err)
	}
}

func TestMemoryActiveGuessPointer(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(clock.Now)

	if _, err := store.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	guessID := uuid.New()
	if err := store.SetActiveGuess(ctx, "alice", guessID); err != nil {
		t.Fatalf("set active guess: %v", err)
	}

	user, err := store.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ActiveGuessID == nil || *user.ActiveGuessID != guessID {
		t.Fatalf("active guess pointer not set: %+v", user.ActiveGuessID)
	}

	clock.Advance(time.Minute)
	if err := store.ClearActiveGuess(ctx, "alice"); err != nil {
		t.Fatalf("clear active guess: %v", err)
	}

	user, err = store.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ActiveGuessID != nil {
		t.Fatal("active guess pointer should be cleared")
	}
	if !user.LastActivity.Equal(clock.Now()) {
		t.Fatalf("updates must bump last activity, got %s", user.LastActivity)
	}
}

func TestMemoryResolveGuessAppliesOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(clock.Now)

	if _, err := store.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	guess, err := store.CreateGuess(ctx, "alice", DirectionUp, decimal.RequireFromString("45000"))
	if err != nil {
		t.Fatalf("create guess: %v", err)
	}
	if guess.Status != StatusPending {
		t.Fatalf("new guess must be pending, got %s", guess.Status)
	}

	resolvedAt := clock.Now().Add(time.Minute)
	applied, err := store.ResolveGuess(ctx, guess.ID, decimal.RequireFromString("46000"), true, resolvedAt)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !applied {
		t.Fatal("first resolution must apply")
	}

	applied, err = store.ResolveGuess(ctx, guess.ID, decimal.RequireFromString("44000"), false, resolvedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if applied {
		t.Fatal("second resolution must be a no-op")
	}

	stored, err := store.GetGuess(ctx, guess.ID)
	if err != nil {
		t.Fatalf("get guess: %v", err)
	}
	if !stored.Resolved() {
		t.Fatal("guess should be resolved")
	}
	if stored.Won == nil || !*stored.Won {
		t.Fatal("the first resolution's outcome must stick")
	}
	if stored.PriceAtResolution == nil || !stored.PriceAtResolution.Equal(decimal.RequireFromString("46000")) {
		t.Fatalf("the first resolution's price must stick, got %v", stored.PriceAtResolution)
	}
}

func TestMemoryResolveGuessNotFound(t *testing.T) {
	store := NewMemory(nil)

	_, err := store.ResolveGuess(context.Background(), uuid.New(), decimal.RequireFromString("1"), true, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySampleQueries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemory(clock.Now)

	base := clock.Now()
	for i := 0; i < 5; i++ {
		sample := PriceSample{
			Price:     decimal.NewFromInt(int64(45000 + i)),
			Source:    "coinbase",
			SampledAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordPriceSample(ctx, sample); err != nil {
			t.Fatalf("record sample: %v", err)
		}
	}

	recent, err := store.ListRecentSamples(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(recent))
	}
	if !recent[0].SampledAt.After(recent[1].SampledAt) {
		t.Fatal("recent samples must be sorted newest first")
	}

	window, err := store.ListSamplesBetween(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 samples in window, got %d", len(window))
	}
	if !window[0].SampledAt.Before(window[1].SampledAt) {
		t.Fatal("windowed samples must be sorted oldest first")
	}
}

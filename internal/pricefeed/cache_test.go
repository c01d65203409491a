package pricefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sam-keen/bitcoin-price-guesser/internal/storage"
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

type stubSource struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchSpot(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	return s.price, nil
}

func (s *stubSource) set(price decimal.Decimal, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	s.err = err
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestProviderCachesWithinTTL(t *testing.T) {
	clock := newFakeClock()
	source := &stubSource{price: decimal.RequireFromString("45000")}
	provider := NewProvider(source, ProviderOptions{TTL: 5 * time.Second, Now: clock.Now}, noopLogger())

	first, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	clock.Advance(4999 * time.Millisecond)
	source.set(decimal.RequireFromString("46000"), nil)

	second, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if source.callCount() != 1 {
		t.Fatalf("two calls inside the TTL must hit upstream once, got %d", source.callCount())
	}
	if !second.Price.Equal(first.Price) || !second.FetchedAt.Equal(first.FetchedAt) {
		t.Fatalf("cached quote mismatch: %+v vs %+v", second, first)
	}
}

func TestProviderRefreshesAfterTTL(t *testing.T) {
	clock := newFakeClock()
	source := &stubSource{price: decimal.RequireFromString("45000")}
	provider := NewProvider(source, ProviderOptions{TTL: 5 * time.Second, Now: clock.Now}, noopLogger())

	if _, err := provider.Current(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	clock.Advance(5 * time.Second)
	source.set(decimal.RequireFromString("46000"), nil)

	quote, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if source.callCount() != 2 {
		t.Fatalf("expected a second upstream fetch, got %d calls", source.callCount())
	}
	if !quote.Price.Equal(decimal.RequireFromString("46000")) {
		t.Fatalf("expected refreshed price, got %s", quote.Price.String())
	}
}

func TestProviderServesStaleOnUpstreamFailure(t *testing.T) {
	clock := newFakeClock()
	source := &stubSource{price: decimal.RequireFromString("45000")}
	provider := NewProvider(source, ProviderOptions{TTL: 5 * time.Second, Now: clock.Now}, noopLogger())

	first, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	clock.Advance(time.Minute)
	source.set(decimal.Decimal{}, errors.New("connection refused"))

	quote, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("stale fallback must not error: %v", err)
	}
	if !quote.Price.Equal(first.Price) {
		t.Fatalf("expected stale price %s, got %s", first.Price.String(), quote.Price.String())
	}
}

func TestProviderUnavailableWithoutCache(t *testing.T) {
	source := &stubSource{err: errors.New("connection refused")}
	provider := NewProvider(source, ProviderOptions{TTL: 5 * time.Second, Now: newFakeClock().Now}, noopLogger())

	if _, err := provider.Current(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestProviderPropagatesBadPayload(t *testing.T) {
	clock := newFakeClock()
	source := &stubSource{price: decimal.RequireFromString("45000")}
	provider := NewProvider(source, ProviderOptions{TTL: 5 * time.Second, Now: clock.Now}, noopLogger())

	if _, err := provider.Current(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	clock.Advance(time.Minute)
	badErr := errors.New("schema change")
	source.set(decimal.Decimal{}, errors.Join(ErrBadPayload, badErr))

	if _, err := provider.Current(context.Background()); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("parse errors must propagate even with a cached quote, got %v", err)
	}
}

func TestProviderRecordsSamples(t *testing.T) {
	clock := newFakeClock()
	store := storage.NewMemory(clock.Now)
	source := &stubSource{price: decimal.RequireFromString("45000")}
	provider := NewProvider(source, ProviderOptions{TTL: 5 * time.Second, Now: clock.Now, Recorder: store}, noopLogger())

	if _, err := provider.Current(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := provider.Current(context.Background()); err != nil {
		t.Fatalf("cached call: %v", err)
	}
	clock.Advance(6 * time.Second)
	source.set(decimal.RequireFromString("45500"), nil)
	if _, err := provider.Current(context.Background()); err != nil {
		t.Fatalf("refresh call: %v", err)
	}

	samples, err := store.ListRecentSamples(context.Background(), 10)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected one sample per fresh fetch, got %d", len(samples))
	}
}

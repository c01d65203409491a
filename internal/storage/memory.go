package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-memory GameStore. It backs local development when no
// database DSN is configured, and the test suite. All operations take the
// store mutex, so single-record updates are atomic exactly like their SQL
// counterparts.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	users   map[string]User
	guesses map[uuid.UUID]Guess
	samples []PriceSample
}

// NewMemory constructs an empty in-memory store. A nil clock defaults to
// time.Now; tests inject their own.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:     now,
		users:   make(map[string]User),
		guesses: make(map[uuid.UUID]Guess),
	}
}

// CreateUser inserts a fresh user or returns the existing record.
func (m *Memory) CreateUser(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.users[userID]; ok {
		return existing, nil
	}

	now := m.now()
	user := User{
		ID:           userID,
		Score:        0,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.users[userID] = user
	return user, nil
}

// GetUser loads a user record.
func (m *Memory) GetUser(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// SetActiveGuess points the user at a pending guess.
func (m *Memory) SetActiveGuess(_ context.Context, userID string, guessID uuid.UUID) error {
	return m.updateUser(userID, func(user *User) {
		id := guessID
		user.ActiveGuessID = &id
	})
}

// ClearActiveGuess drops the user's active guess pointer.
func (m *Memory) ClearActiveGuess(_ context.Context, userID string) error {
	return m.updateUser(userID, func(user *User) {
		user.ActiveGuessID = nil
	})
}

// AdjustScore applies a score delta as an in-place increment.
func (m *Memory) AdjustScore(_ context.Context, userID string, delta int64) error {
	return m.updateUser(userID, func(user *User) {
		user.Score += delta
	})
}

func (m *Memory) updateUser(userID string, mutate func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	mutate(&user)
	user.LastActivity = m.now()
	m.users[userID] = user
	return nil
}

// CreateGuess inserts a new pending guess at the given entry price.
func (m *Memory) CreateGuess(_ context.Context, userID string, direction Direction, priceAtGuess decimal.Decimal) (Guess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	guess := Guess{
		ID:           uuid.New(),
		UserID:       userID,
		Direction:    direction,
		PriceAtGuess: priceAtGuess,
		PlacedAt:     m.now(),
		Status:       StatusPending,
	}
	m.guesses[guess.ID] = guess
	return guess, nil
}

// GetGuess loads a guess record.
func (m *Memory) GetGuess(_ context.Context, guessID uuid.UUID) (Guess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	guess, ok := m.guesses[guessID]
	if !ok {
		return Guess{}, ErrNotFound
	}
	return guess, nil
}

// ResolveGuess settles a pending guess; the status check and the write
// happen under one lock, so only a single caller can apply it.
func (m *Memory) ResolveGuess(_ context.Context, guessID uuid.UUID, priceAtResolution decimal.Decimal, won bool, resolvedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	guess, ok := m.guesses[guessID]
	if !ok {
		return false, ErrNotFound
	}
	if guess.Status != StatusPending {
		return false, nil
	}

	price := priceAtResolution
	wonCopy := won
	at := resolvedAt
	guess.Status = StatusResolved
	guess.PriceAtResolution = &price
	guess.Won = &wonCopy
	guess.ResolvedAt = &at
	m.guesses[guessID] = guess
	return true, nil
}

// RecordPriceSample appends one observed spot price.
func (m *Memory) RecordPriceSample(_ context.Context, sample PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, sample)
	return nil
}

// ListRecentSamples lists the most recent samples, newest first.
func (m *Memory) ListRecentSamples(_ context.Context, limit int) ([]PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := make([]PriceSample, len(m.samples))
	copy(sorted, m.samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SampledAt.After(sorted[j].SampledAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// ListSamplesBetween lists samples within a time window, oldest first.
func (m *Memory) ListSamplesBetween(_ context.Context, from, to time.Time) ([]PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	selected := make([]PriceSample, 0)
	for _, sample := range m.samples {
		if sample.SampledAt.Before(from) || !sample.SampledAt.Before(to) {
			continue
		}
		selected = append(selected, sample)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].SampledAt.Before(selected[j].SampledAt)
	})
	return selected, nil
}

var _ GameStore = (*Memory)(nil)

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the requested user or guess does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// UserStore defines operations on user records. Each operation is atomic
// with respect to a single record.
type UserStore interface {
	// CreateUser inserts a user with score zero and no active guess.
	// Creation is idempotent by id: an existing record is returned untouched.
	CreateUser(ctx context.Context, userID string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	// SetActiveGuess points the user at a pending guess and bumps LastActivity.
	SetActiveGuess(ctx context.Context, userID string, guessID uuid.UUID) error
	// ClearActiveGuess drops the active pointer and bumps LastActivity.
	ClearActiveGuess(ctx context.Context, userID string) error
	// AdjustScore increments the score in place, never read-modify-write.
	AdjustScore(ctx context.Context, userID string, delta int64) error
}

// GuessStore defines operations on guess records.
type GuessStore interface {
	CreateGuess(ctx context.Context, userID string, direction Direction, priceAtGuess decimal.Decimal) (Guess, error)
	GetGuess(ctx context.Context, guessID uuid.UUID) (Guess, error)
	// ResolveGuess settles a guess with a single conditional write keyed on
	// the current status being pending. It reports applied=false when another
	// caller settled the guess first; only the applied=true caller may adjust
	// the score and clear the active pointer.
	ResolveGuess(ctx context.Context, guessID uuid.UUID, priceAtResolution decimal.Decimal, won bool, resolvedAt time.Time) (applied bool, err error)
}

// SampleStore defines operations for price sample history.
type SampleStore interface {
	RecordPriceSample(ctx context.Context, sample PriceSample) error
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error)
}

// GameStore aggregates everything the guess lifecycle needs.
type GameStore interface {
	UserStore
	GuessStore
	SampleStore
}

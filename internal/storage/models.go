package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of a price movement prediction.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// GuessStatus tracks the lifecycle of a guess. Transitions are monotonic:
// pending -> resolved, never back.
type GuessStatus string

const (
	StatusPending  GuessStatus = "pending"
	StatusResolved GuessStatus = "resolved"
)

// User is a player record. ActiveGuessID is non-nil exactly while the user
// has a pending guess.
type User struct {
	ID            string
	Score         int64
	ActiveGuessID *uuid.UUID
	CreatedAt     time.Time
	LastActivity  time.Time
}

// Guess is a directional prediction tied to an entry price. The resolution
// fields are nil until the guess settles and immutable afterwards.
type Guess struct {
	ID                uuid.UUID
	UserID            string
	Direction         Direction
	PriceAtGuess      decimal.Decimal
	PlacedAt          time.Time
	Status            GuessStatus
	PriceAtResolution *decimal.Decimal
	Won               *bool
	ResolvedAt        *time.Time
}

// Resolved reports whether the guess has settled.
func (g Guess) Resolved() bool {
	return g.Status == StatusResolved
}

// PriceSample is one observed upstream spot price, recorded for history and
// export.
type PriceSample struct {
	Price     decimal.Decimal
	Source    string
	SampledAt time.Time
}

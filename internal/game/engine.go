package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sam-keen/bitcoin-price-guesser/internal/metrics"
	"github.com/sam-keen/bitcoin-price-guesser/internal/pricefeed"
	"github.com/sam-keen/bitcoin-price-guesser/internal/storage"
)

var (
	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = errors.New("game: user not found")
	// ErrGuessConflict indicates the user already has a pending guess.
	ErrGuessConflict = errors.New("game: active guess already exists")
	// ErrInvalidDirection indicates a direction other than up or down.
	ErrInvalidDirection = errors.New("game: direction must be up or down")
	// ErrPriceUnavailable indicates no entry price could be read.
	ErrPriceUnavailable = errors.New("game: price unavailable")
)

// PriceReader is the slice of the price provider the engine depends on.
type PriceReader interface {
	Current(ctx context.Context) (pricefeed.Quote, error)
}

// ScoreBoard receives settled scores. Updates are best-effort; a board
// failure never blocks settlement.
type ScoreBoard interface {
	RecordScore(ctx context.Context, userID string, score int64) error
}

// ActiveGuess is a still-pending guess as reported to the caller.
// SecondsRemaining is zero once the guess is old enough to resolve but is
// waiting on a price movement or a reachable feed.
type ActiveGuess struct {
	Guess            storage.Guess
	SecondsRemaining int64
}

// ResolvedGuess is a freshly settled guess together with the score delta
// it produced.
type ResolvedGuess struct {
	Guess       storage.Guess
	ScoreChange int64
}

// UserState is the result of one poll: the score plus at most one of an
// active or a just-resolved guess.
type UserState struct {
	UserID   string
	Score    int64
	Active   *ActiveGuess
	Resolved *ResolvedGuess
}

// Options tune the engine.
type Options struct {
	// ResolutionWindow is the minimum guess age before settlement.
	ResolutionWindow time.Duration
	// Now is the clock; nil defaults to time.Now.
	Now func() time.Time
	// Board is the optional leaderboard sink.
	Board ScoreBoard
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Engine drives the guess lifecycle: creation, countdown, lazy resolution,
// and exactly-once score settlement. It holds no state of its own; the
// store is the single source of truth and resolution is triggered only by
// reads, never by a background timer.
type Engine struct {
	users   storage.UserStore
	guesses storage.GuessStore
	prices  PriceReader
	board   ScoreBoard
	metrics *metrics.Metrics
	window  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewEngine constructs the lifecycle engine.
func NewEngine(users storage.UserStore, guesses storage.GuessStore, prices PriceReader, opts Options, logger zerolog.Logger) *Engine {
	window := opts.ResolutionWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		users:   users,
		guesses: guesses,
		prices:  prices,
		board:   opts.Board,
		metrics: opts.Metrics,
		window:  window,
		now:     now,
		logger:  logger.With().Str("component", "game_engine").Logger(),
	}
}

// SubmitGuess creates a pending guess at the current spot price. A user may
// hold at most one pending guess; the check lives here, not in the store.
func (e *Engine) SubmitGuess(ctx context.Context, userID string, direction storage.Direction) (storage.Guess, error) {
	if !direction.Valid() {
		return storage.Guess{}, ErrInvalidDirection
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Guess{}, ErrUserNotFound
		}
		return storage.Guess{}, fmt.Errorf("load user: %w", err)
	}

	if user.ActiveGuessID != nil {
		return storage.Guess{}, ErrGuessConflict
	}

	quote, err := e.prices.Current(ctx)
	if err != nil {
		return storage.Guess{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, err)
	}

	guess, err := e.guesses.CreateGuess(ctx, userID, direction, quote.Price)
	if err != nil {
		return storage.Guess{}, fmt.Errorf("create guess: %w", err)
	}

	if err := e.users.SetActiveGuess(ctx, userID, guess.ID); err != nil {
		return storage.Guess{}, fmt.Errorf("set active guess: %w", err)
	}

	e.metrics.ObserveGuess(string(direction))
	e.logger.Info().
		Str("user_id", userID).
		Str("guess_id", guess.ID.String()).
		Str("direction", string(direction)).
		Str("price", quote.Price.String()).
		Msg("guess placed")

	return guess, nil
}

// State reports the user's score and guess state, lazily resolving the
// active guess when it is old enough and the price has moved. This is the
// only place settlement happens.
func (e *Engine) State(ctx context.Context, userID string) (UserState, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return UserState{}, ErrUserNotFound
		}
		return UserState{}, fmt.Errorf("load user: %w", err)
	}

	state := UserState{UserID: user.ID, Score: user.Score}
	if user.ActiveGuessID == nil {
		return state, nil
	}

	guess, err := e.guesses.GetGuess(ctx, *user.ActiveGuessID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Dangling pointer; reconcile instead of failing the poll.
			e.logger.Warn().
				Str("user_id", userID).
				Str("guess_id", user.ActiveGuessID.String()).
				Msg("active guess missing, clearing pointer")
			if clearErr := e.users.ClearActiveGuess(ctx, userID); clearErr != nil {
				return UserState{}, fmt.Errorf("clear dangling guess: %w", clearErr)
			}
			return state, nil
		}
		return UserState{}, fmt.Errorf("load guess: %w", err)
	}

	if guess.Resolved() {
		// A concurrent poll settled this guess but its pointer clear has not
		// landed yet. Report the settled guess once and finish the cleanup.
		return e.reconcileResolved(ctx, userID, guess)
	}

	now := e.now()
	elapsed := now.Sub(guess.PlacedAt)
	if elapsed < e.window {
		state.Active = &ActiveGuess{
			Guess:            guess,
			SecondsRemaining: int64(math.Ceil((e.window - elapsed).Seconds())),
		}
		return state, nil
	}

	quote, err := e.prices.Current(ctx)
	if err != nil {
		// Resolution is deferred, never failed, on a price outage.
		e.logger.Warn().Err(err).Str("guess_id", guess.ID.String()).Msg("cannot resolve guess, price unavailable")
		state.Active = &ActiveGuess{Guess: guess}
		return state, nil
	}

	if quote.Price.Equal(guess.PriceAtGuess) {
		// No movement, no outcome. The guess stays pending until the feed
		// reports a different price.
		state.Active = &ActiveGuess{Guess: guess}
		return state, nil
	}

	return e.settle(ctx, user, guess, quote.Price, now)
}

func (e *Engine) settle(ctx context.Context, user storage.User, guess storage.Guess, current decimal.Decimal, now time.Time) (UserState, error) {
	won := wonGuess(guess.Direction, guess.PriceAtGuess, current)
	delta := scoreChange(won)

	applied, err := e.guesses.ResolveGuess(ctx, guess.ID, current, won, now)
	if err != nil {
		return UserState{}, fmt.Errorf("resolve guess: %w", err)
	}
	if !applied {
		// Lost the settlement race; the winner owns the score delta.
		settled, readErr := e.guesses.GetGuess(ctx, guess.ID)
		if readErr != nil {
			return UserState{}, fmt.Errorf("reload settled guess: %w", readErr)
		}
		return e.reconcileResolved(ctx, user.ID, settled)
	}

	if err := e.users.AdjustScore(ctx, user.ID, delta); err != nil {
		// The guess is settled but the score write failed; surfaced rather
		// than compensated, see the partial-failure note in the store docs.
		return UserState{}, fmt.Errorf("adjust score: %w", err)
	}
	if err := e.users.ClearActiveGuess(ctx, user.ID); err != nil {
		return UserState{}, fmt.Errorf("clear active guess: %w", err)
	}

	guess.Status = storage.StatusResolved
	guess.PriceAtResolution = &current
	guess.Won = &won
	guess.ResolvedAt = &now

	newScore := user.Score + delta
	e.publishScore(ctx, user.ID, newScore)
	e.metrics.ObserveResolution(won)
	e.logger.Info().
		Str("user_id", user.ID).
		Str("guess_id", guess.ID.String()).
		Bool("won", won).
		Str("entry_price", guess.PriceAtGuess.String()).
		Str("resolution_price", current.String()).
		Msg("guess resolved")

	return UserState{
		UserID: user.ID,
		Score:  newScore,
		Resolved: &ResolvedGuess{
			Guess:       guess,
			ScoreChange: delta,
		},
	}, nil
}

// reconcileResolved reports an already-settled guess whose active pointer is
// still set, clearing the pointer without touching the score again.
func (e *Engine) reconcileResolved(ctx context.Context, userID string, guess storage.Guess) (UserState, error) {
	if err := e.users.ClearActiveGuess(ctx, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return UserState{}, fmt.Errorf("clear settled guess: %w", err)
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return UserState{}, fmt.Errorf("reload user: %w", err)
	}

	state := UserState{UserID: userID, Score: user.Score}
	if guess.Won != nil {
		state.Resolved = &ResolvedGuess{
			Guess:       guess,
			ScoreChange: scoreChange(*guess.Won),
		}
	}
	return state, nil
}

func (e *Engine) publishScore(ctx context.Context, userID string, score int64) {
	if e.board == nil {
		return
	}
	if err := e.board.RecordScore(ctx, userID, score); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to publish score to leaderboard")
	}
}

func wonGuess(direction storage.Direction, entry, current decimal.Decimal) bool {
	if direction == storage.DirectionUp {
		return current.GreaterThan(entry)
	}
	return current.LessThan(entry)
}

func scoreChange(won bool) int64 {
	if won {
		return 1
	}
	return -1
}

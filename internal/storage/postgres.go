package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	insertUserSQL = `INSERT INTO users (
        user_id,
        score,
        active_guess_id,
        created_at,
        last_activity
    ) VALUES (
        $1, 0, NULL, now(), now()
    )
    ON CONFLICT (user_id) DO NOTHING
    RETURNING user_id, score, active_guess_id, created_at, last_activity;`

	getUserSQL = `SELECT
        user_id,
        score,
        active_guess_id,
        created_at,
        last_activity
    FROM users
    WHERE user_id = $1;`

	setActiveGuessSQL = `UPDATE users
    SET active_guess_id = $2, last_activity = now()
    WHERE user_id = $1;`

	clearActiveGuessSQL = `UPDATE users
    SET active_guess_id = NULL, last_activity = now()
    WHERE user_id = $1;`

	adjustScoreSQL = `UPDATE users
    SET score = score + $2, last_activity = now()
    WHERE user_id = $1;`

	insertGuessSQL = `INSERT INTO guesses (
        guess_id,
        user_id,
        direction,
        price_at_guess,
        placed_at,
        status
    ) VALUES (
        $1, $2, $3, $4, now(), 'pending'
    )
    RETURNING placed_at;`

	getGuessSQL = `SELECT
        guess_id,
        user_id,
        direction,
        price_at_guess,
        placed_at,
        status,
        price_at_resolution,
        won,
        resolved_at
    FROM guesses
    WHERE guess_id = $1;`

	resolveGuessSQL = `UPDATE guesses
    SET status = 'resolved',
        price_at_resolution = $2,
        won = $3,
        resolved_at = $4
    WHERE guess_id = $1
      AND status = 'pending';`

	insertSampleSQL = `INSERT INTO price_samples (
        price,
        source,
        sampled_at
    ) VALUES (
        $1, $2, $3
    );`

	listRecentSamplesSQL = `SELECT price, source, sampled_at
    FROM price_samples
    ORDER BY sampled_at DESC
    LIMIT $1;`

	listSamplesBetweenSQL = `SELECT price, source, sampled_at
    FROM price_samples
    WHERE sampled_at >= $1
      AND sampled_at < $2
    ORDER BY sampled_at;`
)

// Store is the PostgreSQL-backed implementation of GameStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Ping verifies database connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// CreateUser inserts a fresh user or returns the existing record.
func (s *Store) CreateUser(ctx context.Context, userID string) (User, error) {
	pool, err := s.getPool()
	if err != nil {
		return User{}, err
	}

	row := pool.QueryRow(ctx, insertUserSQL, userID)
	user, scanErr := scanUserRow(row)
	if scanErr == nil {
		return user, nil
	}
	if !errors.Is(scanErr, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("create user: %w", scanErr)
	}

	// ON CONFLICT DO NOTHING returned no row: the user already exists.
	return s.GetUser(ctx, userID)
}

// GetUser loads a user record.
func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	pool, err := s.getPool()
	if err != nil {
		return User{}, err
	}

	user, scanErr := scanUserRow(pool.QueryRow(ctx, getUserSQL, userID))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", scanErr)
	}
	return user, nil
}

// SetActiveGuess points the user at a pending guess.
func (s *Store) SetActiveGuess(ctx context.Context, userID string, guessID uuid.UUID) error {
	return s.execUserUpdate(ctx, "set active guess", setActiveGuessSQL, userID, guessID.String())
}

// ClearActiveGuess drops the user's active guess pointer.
func (s *Store) ClearActiveGuess(ctx context.Context, userID string) error {
	return s.execUserUpdate(ctx, "clear active guess", clearActiveGuessSQL, userID)
}

// AdjustScore applies a score delta as an in-place increment.
func (s *Store) AdjustScore(ctx context.Context, userID string, delta int64) error {
	return s.execUserUpdate(ctx, "adjust score", adjustScoreSQL, userID, delta)
}

func (s *Store) execUserUpdate(ctx context.Context, op, query string, args ...any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, query, args...)
	if execErr != nil {
		return fmt.Errorf("%s: %w", op, execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateGuess inserts a new pending guess at the given entry price.
func (s *Store) CreateGuess(ctx context.Context, userID string, direction Direction, priceAtGuess decimal.Decimal) (Guess, error) {
	pool, err := s.getPool()
	if err != nil {
		return Guess{}, err
	}

	guess := Guess{
		ID:           uuid.New(),
		UserID:       userID,
		Direction:    direction,
		PriceAtGuess: priceAtGuess,
		Status:       StatusPending,
	}

	row := pool.QueryRow(ctx, insertGuessSQL,
		guess.ID.String(),
		userID,
		string(direction),
		priceAtGuess.String(),
	)
	if scanErr := row.Scan(&guess.PlacedAt); scanErr != nil {
		return Guess{}, fmt.Errorf("create guess: %w", scanErr)
	}
	return guess, nil
}

// GetGuess loads a guess record.
func (s *Store) GetGuess(ctx context.Context, guessID uuid.UUID) (Guess, error) {
	pool, err := s.getPool()
	if err != nil {
		return Guess{}, err
	}

	guess, scanErr := scanGuessRow(pool.QueryRow(ctx, getGuessSQL, guessID.String()))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Guess{}, ErrNotFound
		}
		return Guess{}, fmt.Errorf("get guess: %w", scanErr)
	}
	return guess, nil
}

// ResolveGuess settles a pending guess. The WHERE status = 'pending' clause
// makes the write conditional: losers of a settlement race see applied=false.
func (s *Store) ResolveGuess(ctx context.Context, guessID uuid.UUID, priceAtResolution decimal.Decimal, won bool, resolvedAt time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, resolveGuessSQL,
		guessID.String(),
		priceAtResolution.String(),
		won,
		resolvedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("resolve guess: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// RecordPriceSample persists one observed spot price.
func (s *Store) RecordPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertSampleSQL, sample.Price.String(), sample.Source, sample.SampledAt); execErr != nil {
		return fmt.Errorf("record price sample: %w", execErr)
	}
	return nil
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// ListSamplesBetween lists samples within a time window, oldest first.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

func collectSamples(rows pgx.Rows, capacity int) ([]PriceSample, error) {
	samples := make([]PriceSample, 0, capacity)
	for rows.Next() {
		var (
			priceStr  string
			source    string
			sampledAt time.Time
		)
		if err := rows.Scan(&priceStr, &source, &sampledAt); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse sample price: %w", err)
		}
		samples = append(samples, PriceSample{Price: price, Source: source, SampledAt: sampledAt})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanUserRow(row pgx.Row) (User, error) {
	var (
		user        User
		activeGuess sql.NullString
	)
	if err := row.Scan(&user.ID, &user.Score, &activeGuess, &user.CreatedAt, &user.LastActivity); err != nil {
		return User{}, err
	}
	if activeGuess.Valid {
		id, err := uuid.Parse(activeGuess.String)
		if err != nil {
			return User{}, fmt.Errorf("parse active guess id: %w", err)
		}
		user.ActiveGuessID = &id
	}
	return user, nil
}

func scanGuessRow(row pgx.Row) (Guess, error) {
	var (
		guess          Guess
		idStr          string
		direction      string
		priceStr       string
		status         string
		resolutionStr  sql.NullString
		won            sql.NullBool
		resolvedAt     sql.NullTime
	)
	if err := row.Scan(&idStr, &guess.UserID, &direction, &priceStr, &guess.PlacedAt, &status, &resolutionStr, &won, &resolvedAt); err != nil {
		return Guess{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Guess{}, fmt.Errorf("parse guess id: %w", err)
	}
	guess.ID = id
	guess.Direction = Direction(direction)
	guess.Status = GuessStatus(status)

	guess.PriceAtGuess, err = decimal.NewFromString(priceStr)
	if err != nil {
		return Guess{}, fmt.Errorf("parse entry price: %w", err)
	}

	if resolutionStr.Valid {
		price, parseErr := decimal.NewFromString(resolutionStr.String)
		if parseErr != nil {
			return Guess{}, fmt.Errorf("parse resolution price: %w", parseErr)
		}
		guess.PriceAtResolution = &price
	}
	if won.Valid {
		value := won.Bool
		guess.Won = &value
	}
	if resolvedAt.Valid {
		value := resolvedAt.Time
		guess.ResolvedAt = &value
	}
	return guess, nil
}

var _ GameStore = (*Store)(nil)

package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Entry is one leaderboard row.
type Entry struct {
	UserID string
	Score  int64
	Rank   int
}

// Board keeps user scores in a redis sorted set. It is a best-effort
// projection of the store, refreshed on every settlement; the store stays
// the source of truth for any individual score.
type Board struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// New constructs a Board over an existing redis client.
func New(client *redis.Client, key string, logger zerolog.Logger) *Board {
	return &Board{
		client: client,
		key:    key,
		logger: logger.With().Str("component", "leaderboard").Logger(),
	}
}

// RecordScore upserts the user's score.
func (b *Board) RecordScore(ctx context.Context, userID string, score int64) error {
	err := b.client.ZAdd(ctx, b.key, redis.Z{
		Score:  float64(score),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}

// Top returns the highest-scoring users, best first.
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	members, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for i, member := range members {
		userID, ok := member.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			UserID: userID,
			Score:  int64(member.Score),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

// Ping verifies redis connectivity, for health checks.
func (b *Board) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

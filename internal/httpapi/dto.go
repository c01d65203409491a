package httpapi

import (
	"github.com/sam-keen/bitcoin-price-guesser/internal/game"
	"github.com/sam-keen/bitcoin-price-guesser/internal/leaderboard"
)

// Wire contract notes: prices serialise as JSON numbers and timestamps as
// milliseconds since epoch, matching the clients already polling this API.

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type priceResponse struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

type sessionResponse struct {
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
}

type guessResponse struct {
	GuessID          string  `json:"guessId"`
	Direction        string  `json:"direction"`
	PriceAtGuess     float64 `json:"priceAtGuess"`
	TimestampAtGuess int64   `json:"timestampAtGuess"`
}

type activeGuessPayload struct {
	GuessID          string  `json:"guessId"`
	Direction        string  `json:"direction"`
	PriceAtGuess     float64 `json:"priceAtGuess"`
	TimestampAtGuess int64   `json:"timestampAtGuess"`
	SecondsRemaining int64   `json:"secondsRemaining"`
}

type resolvedGuessPayload struct {
	GuessID           string  `json:"guessId"`
	Direction         string  `json:"direction"`
	PriceAtGuess      float64 `json:"priceAtGuess"`
	PriceAtResolution float64 `json:"priceAtResolution"`
	Won               bool    `json:"won"`
	ScoreChange       int64   `json:"scoreChange"`
}

type userResponse struct {
	UserID        string                `json:"userId"`
	Score         int64                 `json:"score"`
	ActiveGuess   *activeGuessPayload   `json:"activeGuess"`
	ResolvedGuess *resolvedGuessPayload `json:"resolvedGuess"`
}

type leaderboardEntryPayload struct {
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
	Rank   int    `json:"rank"`
}

type submitGuessRequest struct {
	Direction string `json:"direction"`
}

func newUserResponse(state game.UserState) userResponse {
	resp := userResponse{
		UserID: state.UserID,
		Score:  state.Score,
	}

	if state.Active != nil {
		guess := state.Active.Guess
		resp.ActiveGuess = &activeGuessPayload{
			GuessID:          guess.ID.String(),
			Direction:        string(guess.Direction),
			PriceAtGuess:     guess.PriceAtGuess.InexactFloat64(),
			TimestampAtGuess: guess.PlacedAt.UnixMilli(),
			SecondsRemaining: state.Active.SecondsRemaining,
		}
	}

	if state.Resolved != nil {
		guess := state.Resolved.Guess
		payload := &resolvedGuessPayload{
			GuessID:      guess.ID.String(),
			Direction:    string(guess.Direction),
			PriceAtGuess: guess.PriceAtGuess.InexactFloat64(),
			ScoreChange:  state.Resolved.ScoreChange,
		}
		if guess.PriceAtResolution != nil {
			payload.PriceAtResolution = guess.PriceAtResolution.InexactFloat64()
		}
		if guess.Won != nil {
			payload.Won = *guess.Won
		}
		resp.ResolvedGuess = payload
	}

	return resp
}

func newLeaderboardPayload(entries []leaderboard.Entry) []leaderboardEntryPayload {
	payload := make([]leaderboardEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, leaderboardEntryPayload{
			UserID: entry.UserID,
			Score:  entry.Score,
			Rank:   entry.Rank,
		})
	}
	return payload
}

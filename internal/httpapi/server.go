package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sam-keen/bitcoin-price-guesser/internal/game"
	"github.com/sam-keen/bitcoin-price-guesser/internal/leaderboard"
	"github.com/sam-keen/bitcoin-price-guesser/internal/storage"
)

const bearerPrefix = "Bearer "

// Server exposes the guessing game over HTTP.
type Server struct {
	logger    zerolog.Logger
	engine    *game.Engine
	prices    game.PriceReader
	users     storage.UserStore
	board     *leaderboard.Board
	boardSize int
}

// NewServer wires the HTTP surface. board may be nil, which disables the
// leaderboard route.
func NewServer(logger zerolog.Logger, engine *game.Engine, prices game.PriceReader, users storage.UserStore, board *leaderboard.Board, boardSize int) *Server {
	return &Server{
		logger:    logger.With().Str("component", "http_api").Logger(),
		engine:    engine,
		prices:    prices,
		users:     users,
		board:     board,
		boardSize: boardSize,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/guess", s.submitGuess)
	mux.HandleFunc("/price", s.getPrice)
	mux.HandleFunc("/user", s.getUser)
	mux.HandleFunc("/session", s.getSession)
	if s.board != nil {
		mux.HandleFunc("/leaderboard", s.getLeaderboard)
	}
	return mux
}

func (s *Server) submitGuess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	userID, ok := bearerUserID(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
		return
	}

	var req submitGuessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "Request body must be JSON")
		return
	}

	guess, err := s.engine.SubmitGuess(r.Context(), userID, storage.Direction(req.Direction))
	if err != nil {
		switch {
		case errors.Is(err, game.ErrInvalidDirection):
			s.writeError(w, http.StatusBadRequest, "validation_error", `Invalid direction. Must be "up" or "down"`)
		case errors.Is(err, game.ErrUserNotFound):
			s.writeError(w, http.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, game.ErrGuessConflict):
			s.writeError(w, http.StatusConflict, "conflict", "You already have an active guess")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, guessResponse{
		GuessID:          guess.ID.String(),
		Direction:        string(guess.Direction),
		PriceAtGuess:     guess.PriceAtGuess.InexactFloat64(),
		TimestampAtGuess: guess.PlacedAt.UnixMilli(),
	})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	userID, ok := bearerUserID(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
		return
	}

	state, err := s.engine.State(r.Context(), userID)
	if err != nil {
		if errors.Is(err, game.ErrUserNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newUserResponse(state))
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	quote, err := s.prices.Current(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("price unavailable")
		s.writeError(w, http.StatusServiceUnavailable, "price_unavailable", "Failed to fetch Bitcoin price")
		return
	}

	s.writeJSON(w, http.StatusOK, priceResponse{
		Price:     quote.Price.InexactFloat64(),
		Timestamp: quote.FetchedAt.UnixMilli(),
	})
}

// getSession returns the bearer's user when it exists, otherwise mints a
// new anonymous user. This is the identity supplier for every other route.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	if userID, ok := bearerUserID(r); ok {
		user, err := s.users.GetUser(r.Context(), userID)
		if err == nil {
			s.writeJSON(w, http.StatusOK, sessionResponse{UserID: user.ID, Score: user.Score})
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.internalError(w, r, err)
			return
		}
	}

	user, err := s.users.CreateUser(r.Context(), uuid.NewString())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{UserID: user.ID, Score: user.Score})
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	entries, err := s.board.Top(r.Context(), s.boardSize)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newLeaderboardPayload(entries))
}

func bearerUserID(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	userID := strings.TrimSpace(header[len(bearerPrefix):])
	if userID == "" {
		return "", false
	}
	return userID, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// internalError logs the cause and returns a generic 500 without leaking
// details to the caller.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
	s.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sam-keen/bitcoin-price-guesser/internal/config"
	"github.com/sam-keen/bitcoin-price-guesser/internal/game"
	"github.com/sam-keen/bitcoin-price-guesser/internal/httpapi"
	"github.com/sam-keen/bitcoin-price-guesser/internal/leaderboard"
	"github.com/sam-keen/bitcoin-price-guesser/internal/logging"
	"github.com/sam-keen/bitcoin-price-guesser/internal/metrics"
	"github.com/sam-keen/bitcoin-price-guesser/internal/pricefeed"
	"github.com/sam-keen/bitcoin-price-guesser/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

// pinger is implemented by stores that can report connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

func (a *App) newSource() pricefeed.Source {
	opts := pricefeed.SourceOptions{
		BaseURL:   a.Config.Feed.BaseURL,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}
	if a.Config.Feed.Provider == config.ProviderBinance {
		return pricefeed.NewBinance(opts, a.Logger)
	}
	return pricefeed.NewCoinbase(opts, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.GameStore, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		return storage.NewMemory(nil), nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

func (a *App) newBoard() (*leaderboard.Board, func()) {
	if !a.Config.Leaderboard.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: a.Config.Leaderboard.RedisAddr})
	board := leaderboard.New(client, a.Config.Leaderboard.Key, a.Logger)
	closer := func() {
		if err := client.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	return board, closer
}

// Serve runs the HTTP API until the context is cancelled or a listener
// fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	board, closeBoard := a.newBoard()
	if closeBoard != nil {
		defer closeBoard()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	provider := pricefeed.NewProvider(a.newSource(), pricefeed.ProviderOptions{
		TTL:      a.Config.Feed.CacheTTL,
		Recorder: store,
		Metrics:  m,
	}, a.Logger)

	engineOpts := game.Options{
		ResolutionWindow: a.Config.Game.ResolutionWindow,
		Metrics:          m,
	}
	if board != nil {
		engineOpts.Board = board
	}
	engine := game.NewEngine(store, store, provider, engineOpts, a.Logger)

	api := httpapi.NewServer(a.Logger, engine, provider, store, board, a.Config.Leaderboard.Size)
	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      api.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	var metricsSrv *http.Server
	if a.Config.Metrics.Enabled {
		metricsSrv = a.startMetricsServer(store, board)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Str("feed", a.Config.Feed.Provider).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	a.Logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("http server shutdown incomplete")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// startMetricsServer exposes /metrics and /healthz on a dedicated listener,
// kept off the public port.
func (a *App) startMetricsServer(store storage.GameStore, board *leaderboard.Board) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if p, ok := store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				http.Error(w, "store unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		if board != nil {
			if err := board.Ping(ctx); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: a.Config.Metrics.Addr, Handler: mux}
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

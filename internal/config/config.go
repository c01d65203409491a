package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sam-keen/bitcoin-price-guesser/internal/logging"
)

// Feed providers accepted by feed.provider.
const (
	ProviderCoinbase = "coinbase"
	ProviderBinance  = "binance"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Server      ServerConfig      `mapstructure:"server"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Game        GameConfig        `mapstructure:"game"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the public HTTP API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig governs the metrics/health side listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// FeedConfig captures upstream spot feed connectivity.
type FeedConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// GameConfig holds guess lifecycle tunables.
type GameConfig struct {
	ResolutionWindow time.Duration `mapstructure:"resolution_window"`
}

// LeaderboardConfig wires the optional redis score board.
type LeaderboardConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	RedisAddr string `mapstructure:"redis_addr"`
	Key       string `mapstructure:"key"`
	Size      int    `mapstructure:"size"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BTCGUESSR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "btcguessr")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9095")

	v.SetDefault("feed.provider", ProviderCoinbase)
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "btcguessr/1.0")
	v.SetDefault("feed.cache_ttl", "5s")

	v.SetDefault("game.resolution_window", "60s")

	v.SetDefault("leaderboard.enabled", false)
	v.SetDefault("leaderboard.redis_addr", "localhost:6379")
	v.SetDefault("leaderboard.key", "btcguessr:scores")
	v.SetDefault("leaderboard.size", 10)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Feed.Provider {
	case ProviderCoinbase, ProviderBinance:
	default:
		return fmt.Errorf("feed.provider must be %q or %q", ProviderCoinbase, ProviderBinance)
	}
	if c.Feed.CacheTTL <= 0 {
		return fmt.Errorf("feed.cache_ttl must be greater than zero")
	}
	if c.Game.ResolutionWindow <= 0 {
		return fmt.Errorf("game.resolution_window must be greater than zero")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Leaderboard.Enabled {
		if c.Leaderboard.RedisAddr == "" {
			return fmt.Errorf("leaderboard.redis_addr is required when leaderboard is enabled")
		}
		if c.Leaderboard.Size <= 0 {
			return fmt.Errorf("leaderboard.size must be greater than zero")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

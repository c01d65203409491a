package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("an explicit missing config file must fail")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults must load without a config file: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected server addr: %s", cfg.Server.Addr)
	}
	if cfg.Feed.Provider != ProviderCoinbase {
		t.Fatalf("unexpected default provider: %s", cfg.Feed.Provider)
	}
	if cfg.Feed.CacheTTL != 5*time.Second {
		t.Fatalf("unexpected cache TTL: %s", cfg.Feed.CacheTTL)
	}
	if cfg.Game.ResolutionWindow != 60*time.Second {
		t.Fatalf("unexpected resolution window: %s", cfg.Game.ResolutionWindow)
	}
	if cfg.Leaderboard.Enabled {
		t.Fatal("leaderboard must be off by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  addr: ":9000"
feed:
  provider: binance
  cache_ttl: 2s
game:
  resolution_window: 30s
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected server addr: %s", cfg.Server.Addr)
	}
	if cfg.Feed.Provider != ProviderBinance {
		t.Fatalf("unexpected provider: %s", cfg.Feed.Provider)
	}
	if cfg.Feed.CacheTTL != 2*time.Second {
		t.Fatalf("unexpected cache TTL: %s", cfg.Feed.CacheTTL)
	}
	if cfg.Game.ResolutionWindow != 30*time.Second {
		t.Fatalf("unexpected resolution window: %s", cfg.Game.ResolutionWindow)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load defaults: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Feed.Provider = "kraken"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown provider must be rejected")
	}

	cfg = base()
	cfg.Feed.CacheTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero cache TTL must be rejected")
	}

	cfg = base()
	cfg.Game.ResolutionWindow = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative resolution window must be rejected")
	}

	cfg = base()
	cfg.Leaderboard.Enabled = true
	cfg.Leaderboard.RedisAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled leaderboard without redis addr must be rejected")
	}
}

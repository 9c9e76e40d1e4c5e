package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("NOTEBOOK_MAX_MOVES", "")
	t.Setenv("REDIS_URL", "")

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.MaxMoves != 500 {
		t.Fatalf("expected default max moves 500, got %d", cfg.MaxMoves)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %s", cfg.AccessTTL)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.RedisURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("NOTEBOOK_MAX_MOVES", "25")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("NOTEBOOK_ACCESS_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.Addr != ":9000" || cfg.MaxMoves != 25 || !cfg.LogPretty {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("expected fallback for malformed ttl, got %s", cfg.AccessTTL)
	}
}

func TestGetenvDuration(t *testing.T) {
	t.Setenv("SOME_WINDOW", "750ms")
	if got := GetenvDuration("SOME_WINDOW", time.Second); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", got)
	}
	t.Setenv("SOME_WINDOW", "-1s")
	if got := GetenvDuration("SOME_WINDOW", time.Second); got != time.Second {
		t.Fatalf("expected fallback for negative duration, got %s", got)
	}
}

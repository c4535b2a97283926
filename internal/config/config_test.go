package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("RATE_LIMIT_PER_MIN", "")
	t.Setenv("RATE_LIMIT_BURST", "")

	cfg := Load()
	if cfg.Port != "5000" {
		t.Fatalf("port = %q, want 5000", cfg.Port)
	}
	if cfg.RateLimitPerMinute != 120 || cfg.RateLimitBurst != 30 {
		t.Fatalf("rate limit defaults = %d/%d, want 120/30", cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DB_DSN", "postgres://localhost/fila")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost/fila" {
		t.Fatalf("dsn = %q", cfg.DatabaseURL)
	}
	if cfg.RateLimitPerMinute != 10 {
		t.Fatalf("per minute = %d, want 10", cfg.RateLimitPerMinute)
	}
	if cfg.RateLimitBurst != 30 {
		t.Fatalf("burst fallback = %d, want 30", cfg.RateLimitBurst)
	}
}

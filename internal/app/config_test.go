package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "  hello  ")
	t.Setenv("X_BOOL", "true")
	t.Setenv("X_INT", "42")
	t.Setenv("X_INT_BAD", "-3")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_DUR_BAD", "soon")

	if got := envString("X_STR", "def"); got != "hello" {
		t.Fatalf("envString = %q", got)
	}
	if got := envString("X_MISSING", "def"); got != "def" {
		t.Fatalf("envString default = %q", got)
	}
	if !envBool("X_BOOL", false) {
		t.Fatalf("envBool should be true")
	}
	if got := envInt("X_INT", 1); got != 42 {
		t.Fatalf("envInt = %d", got)
	}
	if got := envInt("X_INT_BAD", 7); got != 7 {
		t.Fatalf("envInt negative should fall back, got %d", got)
	}
	if got := envDuration("X_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("envDuration = %v", got)
	}
	if got := envDuration("X_DUR_BAD", time.Second); got != time.Second {
		t.Fatalf("envDuration bad input should fall back, got %v", got)
	}
	if got := envInt32("X_INT", 1); got != 42 {
		t.Fatalf("envInt32 = %d", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr == "" {
		t.Fatalf("empty default HTTP addr")
	}
	if cfg.TokenTTL <= 0 || cfg.TypingTTL <= 0 {
		t.Fatalf("non-positive TTL defaults: %+v", cfg)
	}
	if cfg.ReadHeaderTimeout <= 0 || cfg.IdleTimeout <= 0 {
		t.Fatalf("non-positive HTTP timeouts: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("COMMUNET_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("COMMUNET_TOKEN_TTL", "1h")
	t.Setenv("COMMUNET_TYPING_TTL", "2s")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.TypingTTL != 2*time.Second {
		t.Fatalf("TypingTTL = %v", cfg.TypingTTL)
	}
}

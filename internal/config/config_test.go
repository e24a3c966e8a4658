package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != DefaultAddr {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if cfg.MaxFrameBytes != DefaultMaxFrameBytes {
		t.Fatalf("unexpected frame cap: %d", cfg.MaxFrameBytes)
	}
	if cfg.MaxStateBytes != DefaultMaxStateBytes {
		t.Fatalf("unexpected state cap: %d", cfg.MaxStateBytes)
	}
	if cfg.RateLimit != DefaultRateLimit || cfg.RateWindow != DefaultRateWindow {
		t.Fatalf("unexpected rate limit: %d per %s", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.ReversionDelay != DefaultReversionDelay {
		t.Fatalf("unexpected reversion delay: %s", cfg.ReversionDelay)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout {
		t.Fatalf("unexpected idle timeout: %s", cfg.IdleTimeout)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COORD_ADDR", ":9001")
	t.Setenv("COORD_MAX_FRAME_BYTES", "2048")
	t.Setenv("COORD_MAX_STATE_BYTES", "1024")
	t.Setenv("COORD_RATE_LIMIT", "10")
	t.Setenv("COORD_RATE_WINDOW", "5s")
	t.Setenv("COORD_REVERSION_DELAY", "90s")
	t.Setenv("COORD_IDLE_TIMEOUT", "1h")
	t.Setenv("COORD_MAX_SESSIONS", "3")
	t.Setenv("COORD_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != ":9001" {
		t.Fatalf("address override lost: %q", cfg.Address)
	}
	if cfg.MaxFrameBytes != 2048 || cfg.MaxStateBytes != 1024 {
		t.Fatalf("size overrides lost: %d/%d", cfg.MaxFrameBytes, cfg.MaxStateBytes)
	}
	if cfg.RateLimit != 10 || cfg.RateWindow != 5*time.Second {
		t.Fatalf("rate overrides lost: %d per %s", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.ReversionDelay != 90*time.Second {
		t.Fatalf("reversion override lost: %s", cfg.ReversionDelay)
	}
	if cfg.IdleTimeout != time.Hour {
		t.Fatalf("idle override lost: %s", cfg.IdleTimeout)
	}
	if cfg.MaxSessions != 3 {
		t.Fatalf("session ceiling override lost: %d", cfg.MaxSessions)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origin list mismatch: %v", cfg.AllowedOrigins)
	}
}

func TestLoadAggregatesProblems(t *testing.T) {
	t.Setenv("COORD_MAX_FRAME_BYTES", "-1")
	t.Setenv("COORD_RATE_LIMIT", "zero")
	t.Setenv("COORD_IDLE_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, key := range []string{"COORD_MAX_FRAME_BYTES", "COORD_RATE_LIMIT", "COORD_IDLE_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error missing %s: %v", key, err)
		}
	}
}

func TestLoadRejectsStateCapOverFrameCap(t *testing.T) {
	t.Setenv("COORD_MAX_FRAME_BYTES", "1024")
	t.Setenv("COORD_MAX_STATE_BYTES", "4096")

	if _, err := Load(); err == nil {
		t.Fatal("expected state cap over frame cap to be rejected")
	}
}

func TestLoadRejectsLoneTLSSetting(t *testing.T) {
	t.Setenv("COORD_TLS_CERT", "/tmp/cert.pem")

	if _, err := Load(); err == nil {
		t.Fatal("expected lone TLS cert to be rejected")
	}
}

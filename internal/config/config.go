package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the coordinator listens on.
	DefaultAddr = ":43210"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxFrameBytes limits inbound WebSocket frame size.
	DefaultMaxFrameBytes int64 = 16 << 20
	// DefaultMaxStateBytes caps the serialized size of a session's game-state blob.
	DefaultMaxStateBytes int64 = 10 << 20
	// DefaultMaxSessions bounds concurrently active sessions. Zero disables the limit.
	DefaultMaxSessions = 256

	// DefaultRateLimit is the number of inbound messages admitted per rolling window.
	DefaultRateLimit = 60
	// DefaultRateWindow is the rolling window used by the per-connection rate limiter.
	DefaultRateWindow = time.Minute

	// DefaultReversionDelay is how long a disconnected slot waits before automation.
	DefaultReversionDelay = 60 * time.Second
	// DefaultEmptyTeardownDelay is the grace period after the last human connection drops.
	DefaultEmptyTeardownDelay = 60 * time.Second
	// DefaultIdleTimeout tears down sessions without qualifying activity.
	DefaultIdleTimeout = 20 * time.Minute

	// DefaultLogLevel controls verbosity for coordinator logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "coordinator.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the coordinator service.
type Config struct {
	Address            string
	AllowedOrigins     []string
	MaxFrameBytes      int64
	MaxStateBytes      int64
	PingInterval       time.Duration
	MaxSessions        int
	RateLimit          int
	RateWindow         time.Duration
	ReversionDelay     time.Duration
	EmptyTeardownDelay time.Duration
	IdleTimeout        time.Duration
	SessionLogDir      string
	AdminToken         string
	TLSCertPath        string
	TLSKeyPath         string
	Logging            LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the coordinator configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:            getString("COORD_ADDR", DefaultAddr),
		AllowedOrigins:     parseList(os.Getenv("COORD_ALLOWED_ORIGINS")),
		MaxFrameBytes:      DefaultMaxFrameBytes,
		MaxStateBytes:      DefaultMaxStateBytes,
		PingInterval:       DefaultPingInterval,
		MaxSessions:        DefaultMaxSessions,
		RateLimit:          DefaultRateLimit,
		RateWindow:         DefaultRateWindow,
		ReversionDelay:     DefaultReversionDelay,
		EmptyTeardownDelay: DefaultEmptyTeardownDelay,
		IdleTimeout:        DefaultIdleTimeout,
		SessionLogDir:      strings.TrimSpace(os.Getenv("COORD_SESSION_LOG_DIR")),
		AdminToken:         strings.TrimSpace(os.Getenv("COORD_ADMIN_TOKEN")),
		TLSCertPath:        strings.TrimSpace(os.Getenv("COORD_TLS_CERT")),
		TLSKeyPath:         strings.TrimSpace(os.Getenv("COORD_TLS_KEY")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("COORD_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("COORD_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	parsePositiveBytes(&problems, "COORD_MAX_FRAME_BYTES", &cfg.MaxFrameBytes)
	parsePositiveBytes(&problems, "COORD_MAX_STATE_BYTES", &cfg.MaxStateBytes)

	parsePositiveDuration(&problems, "COORD_PING_INTERVAL", &cfg.PingInterval)
	parsePositiveDuration(&problems, "COORD_RATE_WINDOW", &cfg.RateWindow)
	parsePositiveDuration(&problems, "COORD_REVERSION_DELAY", &cfg.ReversionDelay)
	parsePositiveDuration(&problems, "COORD_EMPTY_TEARDOWN_DELAY", &cfg.EmptyTeardownDelay)
	parsePositiveDuration(&problems, "COORD_IDLE_TIMEOUT", &cfg.IdleTimeout)

	if raw := strings.TrimSpace(os.Getenv("COORD_MAX_SESSIONS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("COORD_MAX_SESSIONS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxSessions = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORD_RATE_LIMIT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("COORD_RATE_LIMIT must be a positive integer, got %q", raw))
		} else {
			cfg.RateLimit = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORD_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("COORD_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORD_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("COORD_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORD_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("COORD_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("COORD_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("COORD_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.MaxStateBytes > cfg.MaxFrameBytes {
		problems = append(problems, "COORD_MAX_STATE_BYTES must not exceed COORD_MAX_FRAME_BYTES")
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "COORD_TLS_CERT and COORD_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func parsePositiveBytes(problems *[]string, key string, target *int64) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		return
	}
	*target = value
}

func parsePositiveDuration(problems *[]string, key string, target *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*target = duration
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}

package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Session token lifetime for the auth service.
	TokenTTL time.Duration

	// Typing indicators expire server-side this long after the last signal.
	TypingTTL time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: envString("COMMUNET_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: envString("COMMUNET_LOG_LEVEL", "info"),

		ReadHeaderTimeout: envDuration("COMMUNET_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       envDuration("COMMUNET_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      envDuration("COMMUNET_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       envDuration("COMMUNET_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: envInt("COMMUNET_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: envString("COMMUNET_DATABASE_URL", ""),
		DBMaxConns:  envInt32("COMMUNET_DB_MAX_CONNS", 10),
		DBMinConns:  envInt32("COMMUNET_DB_MIN_CONNS", 0),

		ReadinessRequireDB: envBool("COMMUNET_READINESS_REQUIRE_DB", false),

		TokenTTL:  envDuration("COMMUNET_TOKEN_TTL", 24*time.Hour),
		TypingTTL: envDuration("COMMUNET_TYPING_TTL", 5*time.Second),
	}
}

package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide slog JSON logger and installs it as the
// slog default. Unknown level strings fall back to info. Source locations
// are attached only at debug level; they are noise at production volume.
func NewLogger(level string) *slog.Logger {
	lvl := parseLogLevel(level)

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})).With("service", "communet")

	slog.SetDefault(log)
	return log
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

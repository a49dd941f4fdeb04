// Package logging builds the project's slog loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// Config holds logging configuration.
type Config struct {
	Level  slog.Level
	Output io.Writer
}

// New returns a logger writing tinted output to cfg.Output at cfg.Level.
func New(cfg Config) *slog.Logger {
	return slog.New(tint.NewHandler(cfg.Output, &tint.Options{
		Level:      cfg.Level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}))
}

// ParseLevel maps a level name to a slog.Level. The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

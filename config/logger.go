package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger. An empty format picks text in
// development and JSON everywhere else.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(cfg.LogFormat)
	if format == "" {
		format = "json"
		if cfg.Env == "development" {
			format = "text"
		}
	}

	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", "soulbond"))
}

// Package logger builds the process-wide slog logger and a few attribute helpers.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger creates a logger configured from LOG_LEVEL and GO_ENV.
// Production uses the JSON handler, everything else the text handler.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Scope tags log records with the component that produced them.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error wraps err as a log attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Discard returns a logger that drops every record. Used as the default
// when a component is built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

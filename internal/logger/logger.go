package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Configure installs the process logger. Hook output goes to stderr so that
// stdout stays free for the calling ACME client.
func Configure(levelStr string, env string) *slog.Logger {
	l := New(os.Stderr, levelStr, env)
	slog.SetDefault(l)
	return l
}

func New(w io.Writer, levelStr string, env string) *slog.Logger {
	level := parseLogLevel(levelStr)
	var handler slog.Handler

	if env == "dev" || env == "development" {
		handler = tint.NewHandler(w, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

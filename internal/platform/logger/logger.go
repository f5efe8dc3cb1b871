package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"civicdesk/internal/platform/config"
)

// New builds the process logger: JSON outside development, text otherwise,
// unless the format is set explicitly.
func New(cfg config.LogConfig, env string) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, env)
}

func NewWithWriter(w io.Writer, cfg config.LogConfig, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
		if env == config.DefaultEnv {
			format = "text"
		}
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "civicdesk")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

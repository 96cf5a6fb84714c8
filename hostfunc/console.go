package hostfunc

import (
	"context"
	"log/slog"
	"strings"
)

// Console returns the log capability. It takes {level, message} and writes
// through logger with source=runtime.
func Console(logger *slog.Logger) Func {
	logger = logger.With("source", "runtime")
	return func(ctx context.Context, args map[string]any) (any, error) {
		msg, err := String(args, "message")
		if err != nil {
			return nil, err
		}
		level, _ := OptString(args, "level")
		logger.Log(ctx, consoleLevel(level), msg)
		return nil, nil
	}
}

func consoleLevel(level string) slog.Level {
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

package hostfunc

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Recover converts a panic inside a host function into an error so a
// misbehaving capability cannot take down the runtime owner.
func Recover() Middleware {
	return func(name string, next Func) Func {
		return func(ctx context.Context, args map[string]any) (result any, err error) {
			defer func() {
				if p := recover(); p != nil {
					result = nil
					err = fmt.Errorf("host function %s panicked: %v", name, p)
				}
			}()
			return next(ctx, args)
		}
	}
}

// Logging emits one debug record per call and a warning for failures.
func Logging(logger *slog.Logger) Middleware {
	return func(name string, next Func) Func {
		return func(ctx context.Context, args map[string]any) (any, error) {
			start := time.Now()
			result, err := next(ctx, args)
			if err != nil {
				logger.Warn("host function failed", "func", name, "duration", time.Since(start), "error", err)
				return result, err
			}
			logger.Debug("host function", "func", name, "duration", time.Since(start))
			return result, nil
		}
	}
}

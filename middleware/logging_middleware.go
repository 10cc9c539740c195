package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Logging records every request with its command, round-trip duration, and
// outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, command string, args any) (json.RawMessage, error) {
			start := time.Now()
			body, err := next(ctx, command, args)
			duration := time.Since(start)
			if err != nil {
				logger.Warn("request failed", "command", command, "duration", duration, "err", err)
			} else {
				logger.Debug("request completed", "command", command, "duration", duration)
			}
			return body, err
		}
	}
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"mini-dap/transport"
)

// Retry re-sends a request after transient transport failures, with
// exponential backoff. Adapter-level rejections (*transport.AdapterError) are
// definitive answers and are never retried; neither is a caller-cancelled
// context.
func Retry(maxRetries int, baseDelay time.Duration, logger *slog.Logger) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, command string, args any) (json.RawMessage, error) {
			body, err := next(ctx, command, args)
			for attempt := 1; attempt <= maxRetries && retryable(err); attempt++ {
				logger.Warn("retrying request", "command", command, "attempt", attempt, "err", err)

				select {
				case <-time.After(baseDelay * time.Duration(1<<(attempt-1))):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				body, err = next(ctx, command, args)
			}
			return body, err
		}
	}
}

func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		var aerr *transport.AdapterError
		return !errors.As(err, &aerr)
	}
}

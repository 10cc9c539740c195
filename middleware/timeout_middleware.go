package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// Timeout bounds each request with a deadline. The connection core leaves
// unanswered requests pending forever; this is the wrapper that turns a
// silent adapter into a context.DeadlineExceeded.
func Timeout(timeout time.Duration) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, command string, args any) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, command, args)
		}
	}
}

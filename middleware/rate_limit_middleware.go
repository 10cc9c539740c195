package middleware

import (
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request is refused by the token bucket.
var ErrRateLimited = errors.New("request rate limit exceeded")

// RateLimit applies a token-bucket limit to outbound requests. Useful when a
// chatty frontend (e.g. variable hovers firing evaluate requests) can flood a
// slow adapter.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, command string, args any) (json.RawMessage, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, command, args)
		}
	}
}

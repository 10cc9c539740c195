// Package middleware wraps the outbound request path of a debug adapter
// client. The connection core enforces no timeout, retry, or throttling
// policy of its own; middlewares are the caller-level layer where those
// policies live.
package middleware

import (
	"context"
	"encoding/json"
)

// CallFunc sends one request and yields the response body or a failure.
type CallFunc func(ctx context.Context, command string, args any) (json.RawMessage, error)

// Middleware wraps a CallFunc with additional behavior.
type Middleware func(next CallFunc) CallFunc

// Chain combines middlewares into one. Chain(A, B, C)(call) runs as
// A(B(C(call))): A sees the request first and the result last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next CallFunc) CallFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks calls canceled by Timeout.
var ErrTimeout = errors.New("middleware: call timed out")

// Timeout cancels each call after d. A call failing because of it returns an
// error matching both ErrTimeout and the call's own error; cancellation of the
// parent context is returned unchanged. A zero or negative d disables the timeout.
func Timeout[In, Out any](d time.Duration) Middleware[In, Out] {
	return func(next ProcessFunc[In, Out]) ProcessFunc[In, Out] {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, in In) ([]Out, error) {
			callCtx, cancel := context.WithTimeoutCause(ctx, d, ErrTimeout)
			defer cancel()

			out, err := next(callCtx, in)
			if err != nil && ctx.Err() == nil && errors.Is(context.Cause(callCtx), ErrTimeout) {
				return out, fmt.Errorf("%w after %s: %w", ErrTimeout, d, err)
			}
			return out, err
		}
	}
}

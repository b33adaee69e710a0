package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
)

// RecoveryError is returned in place of a recovered panic.
type RecoveryError struct {
	// PanicValue is the value passed to panic.
	PanicValue any
	// StackTrace is the stack of the panicking goroutine.
	StackTrace string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("middleware: panic recovered: %v", e.PanicValue)
}

// Unwrap returns the panic value when it is an error.
func (e *RecoveryError) Unwrap() error {
	err, _ := e.PanicValue.(error)
	return err
}

// Recover converts panics in the wrapped function, including panics raised by
// output callbacks it invokes, into a *RecoveryError.
func Recover[In, Out any]() Middleware[In, Out] {
	return func(next ProcessFunc[In, Out]) ProcessFunc[In, Out] {
		return func(ctx context.Context, in In) (out []Out, err error) {
			defer func() {
				if r := recover(); r != nil {
					out = nil
					err = &RecoveryError{PanicValue: r, StackTrace: string(debug.Stack())}
				}
			}()
			return next(ctx, in)
		}
	}
}

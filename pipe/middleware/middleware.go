// Package middleware provides composable middleware for pipe processing functions.
//
// Middleware wraps a ProcessFunc with behavior such as panic recovery,
// per-call timeouts, metadata enrichment and metrics collection.
package middleware

import "context"

// ProcessFunc processes one input into zero or more outputs.
type ProcessFunc[In, Out any] func(context.Context, In) ([]Out, error)

// Middleware wraps a ProcessFunc with additional behavior.
type Middleware[In, Out any] func(ProcessFunc[In, Out]) ProcessFunc[In, Out]

package middleware

import (
	"context"
	"maps"
)

// Metadata annotates a processed input, typically for logs and metrics.
type Metadata map[string]any

type metadataKey struct{}

// MetadataFromContext returns the metadata attached to ctx, or nil.
func MetadataFromContext(ctx context.Context) Metadata {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(metadataKey{}).(Metadata)
	return m
}

// MetadataProvider attaches provider(in) to the context of each call.
// Metadata already present on the context is extended, not replaced.
func MetadataProvider[In, Out any](provider func(in In) Metadata) Middleware[In, Out] {
	return func(next ProcessFunc[In, Out]) ProcessFunc[In, Out] {
		return func(ctx context.Context, in In) ([]Out, error) {
			m := maps.Clone(MetadataFromContext(ctx))
			if m == nil {
				m = make(Metadata)
			}
			maps.Copy(m, provider(in))
			return next(context.WithValue(ctx, metadataKey{}, m), in)
		}
	}
}

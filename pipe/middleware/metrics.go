package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Metrics holds processing metrics for a single input.
type Metrics struct {
	Start    time.Time
	Duration time.Duration
	Output   int
	InFlight int
	Metadata Metadata
	Error    error
}

// Success returns 1 when processing succeeded, 0 otherwise.
func (m *Metrics) Success() int {
	if m.Error == nil {
		return 1
	}
	return 0
}

// Canceled returns 1 when processing ended with a context error, 0 otherwise.
func (m *Metrics) Canceled() int {
	if errors.Is(m.Error, context.Canceled) || errors.Is(m.Error, context.DeadlineExceeded) {
		return 1
	}
	return 0
}

// MetricsCollector receives the metrics of each processed input.
type MetricsCollector func(metrics *Metrics)

// MetricsMiddleware measures every call and passes the result to collect.
func MetricsMiddleware[In, Out any](collect MetricsCollector) Middleware[In, Out] {
	var inFlight atomic.Int32
	return func(next ProcessFunc[In, Out]) ProcessFunc[In, Out] {
		return func(ctx context.Context, in In) ([]Out, error) {
			m := &Metrics{
				Start:    time.Now(),
				InFlight: int(inFlight.Add(1)),
				Metadata: MetadataFromContext(ctx),
			}

			out, err := next(ctx, in)

			m.Duration = time.Since(m.Start)
			inFlight.Add(-1)
			m.Output = len(out)
			m.Error = err
			collect(m)

			return out, err
		}
	}
}

// DistributeMetrics fans metrics out to several collectors.
func DistributeMetrics(collectors ...MetricsCollector) MetricsCollector {
	return func(m *Metrics) {
		for _, c := range collectors {
			c(m)
		}
	}
}

package pipe

import (
	"context"
	"sync"

	"github.com/fxsml/goaggregate/pipe/middleware"
)

// Generator calls a receive function on a pool of workers until its context is
// canceled. It turns pull based sources, such as transport receivers, into a channel.
type Generator[Out any] struct {
	fn  ProcessFunc[struct{}, Out]
	cfg Config
	mw  []middleware.Middleware[struct{}, Out]

	mu      sync.Mutex
	started bool
}

// NewGenerator creates a Generator. The receive function is called repeatedly;
// it should block until a value is available or ctx is done.
func NewGenerator[Out any](
	receive func(context.Context) ([]Out, error),
	cfg Config,
) *Generator[Out] {
	return &Generator[Out]{
		fn: func(ctx context.Context, _ struct{}) ([]Out, error) {
			return receive(ctx)
		},
		cfg: cfg,
	}
}

// Generate starts the workers. The returned channel is closed after ctx is
// canceled and all workers have exited.
// Returns ErrAlreadyStarted if the generator has already been started.
func (g *Generator[Out]) Generate(ctx context.Context) (<-chan Out, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil, ErrAlreadyStarted
	}
	g.started = true
	return startProcessing(ctx, ticks(ctx), applyMiddleware(g.fn, g.mw), g.cfg), nil
}

// ApplyMiddleware adds middleware around the receive function.
// Returns ErrAlreadyStarted if the generator has already been started.
func (g *Generator[Out]) ApplyMiddleware(mw ...middleware.Middleware[struct{}, Out]) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrAlreadyStarted
	}
	g.mw = append(g.mw, mw...)
	return nil
}

// ticks emits until ctx is done, one value per worker request.
func ticks(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ch <- struct{}{}:
			}
		}
	}()
	return ch
}

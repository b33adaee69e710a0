package pipe

import (
	"context"
	"sync"

	"github.com/fxsml/goaggregate/pipe/middleware"
)

// Pipe consumes values from an input channel and produces values on an output channel.
type Pipe[In, Out any] interface {
	// Pipe starts processing in and returns the output channel.
	// Processing continues until in is closed or ctx is canceled.
	// Returns ErrAlreadyStarted if the pipe has already been started.
	Pipe(ctx context.Context, in <-chan In) (<-chan Out, error)
}

type appliedPipe[In, Inter, Out any] struct {
	first  Pipe[In, Inter]
	second Pipe[Inter, Out]
}

func (p *appliedPipe[In, Inter, Out]) Pipe(ctx context.Context, in <-chan In) (<-chan Out, error) {
	inter, err := p.first.Pipe(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.second.Pipe(ctx, inter)
}

// Apply connects the output of a to the input of b.
func Apply[In, Inter, Out any](a Pipe[In, Inter], b Pipe[Inter, Out]) Pipe[In, Out] {
	return &appliedPipe[In, Inter, Out]{first: a, second: b}
}

// NewProcessPipe creates a Pipe that maps each input to zero or more outputs.
// Use ApplyMiddleware on the returned *ProcessPipe to add middleware.
func NewProcessPipe[In, Out any](
	handle func(context.Context, In) ([]Out, error),
	cfg Config,
) *ProcessPipe[In, Out] {
	return &ProcessPipe[In, Out]{
		handle: handle,
		cfg:    cfg,
	}
}

// NewTransformPipe creates a Pipe that maps each input to exactly one output.
func NewTransformPipe[In, Out any](
	handle func(context.Context, In) (Out, error),
	cfg Config,
) *ProcessPipe[In, Out] {
	return NewProcessPipe(func(ctx context.Context, in In) ([]Out, error) {
		out, err := handle(ctx, in)
		if err != nil {
			return nil, err
		}
		return []Out{out}, nil
	}, cfg)
}

// NewSinkPipe creates a Pipe that applies handle to each input and produces no outputs.
// The returned channel is closed after in is closed and all inputs are handled.
func NewSinkPipe[In any](
	handle func(context.Context, In) error,
	cfg Config,
) *ProcessPipe[In, struct{}] {
	return NewProcessPipe(func(ctx context.Context, in In) ([]struct{}, error) {
		return nil, handle(ctx, in)
	}, cfg)
}

// ProcessPipe runs a ProcessFunc on a pool of workers.
type ProcessPipe[In, Out any] struct {
	handle ProcessFunc[In, Out]
	cfg    Config
	mw     []middleware.Middleware[In, Out]

	mu      sync.Mutex
	started bool
}

// Pipe starts the workers.
// Returns ErrAlreadyStarted if the pipe has already been started.
func (p *ProcessPipe[In, Out]) Pipe(ctx context.Context, in <-chan In) (<-chan Out, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil, ErrAlreadyStarted
	}
	p.started = true
	return startProcessing(ctx, in, applyMiddleware(p.handle, p.mw), p.cfg), nil
}

// ApplyMiddleware adds middleware. The first middleware added is the outermost.
// Returns ErrAlreadyStarted if the pipe has already been started.
func (p *ProcessPipe[In, Out]) ApplyMiddleware(mw ...middleware.Middleware[In, Out]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.mw = append(p.mw, mw...)
	return nil
}

func applyMiddleware[In, Out any](fn ProcessFunc[In, Out], mw []middleware.Middleware[In, Out]) ProcessFunc[In, Out] {
	for i := len(mw) - 1; i >= 0; i-- {
		fn = ProcessFunc[In, Out](mw[i](middleware.ProcessFunc[In, Out](fn)))
	}
	return fn
}

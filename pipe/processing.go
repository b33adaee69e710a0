package pipe

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessFunc processes one input into zero or more outputs.
type ProcessFunc[In, Out any] func(ctx context.Context, in In) ([]Out, error)

// Config configures behavior of a Pipe.
type Config struct {
	// Name identifies the stage in logs.
	Name string

	// Concurrency sets the number of concurrent workers.
	// Default is 1.
	Concurrency int

	// BufferSize sets the output channel buffer size.
	// Default is 0 (unbuffered).
	BufferSize int

	// ErrorHandler is called when processing fails.
	// Default logs via slog.Error.
	ErrorHandler func(in any, err error)

	// CleanupHandler runs after the last worker exited and before the output closes.
	CleanupHandler func(ctx context.Context)

	// CleanupTimeout bounds the context passed to CleanupHandler.
	CleanupTimeout time.Duration

	// ShutdownTimeout is the grace period after context cancellation.
	// If <= 0, shutdown is forced immediately. On forced shutdown workers
	// abandon blocked sends and exit.
	ShutdownTimeout time.Duration
}

func (c Config) parse() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.ErrorHandler == nil {
		name := c.Name
		c.ErrorHandler = func(in any, err error) {
			slog.Error("Processing failed", "component", "pipe", "stage", name, "input", in, "error", err)
		}
	}
	return c
}

type workers[In, Out any] struct {
	cfg Config
	fn  ProcessFunc[In, Out]
	out chan Out

	// closed on forced shutdown
	abort chan struct{}
	// closed when every worker returned
	idle chan struct{}
}

// startProcessing runs fn on cfg.Concurrency workers reading from in.
//
// The returned channel closes after all workers exited and the CleanupHandler
// returned. Workers exit when in is closed. On ctx cancellation ShutdownTimeout
// bounds the wait; after that blocked sends are reported as ErrShutdownDropped.
func startProcessing[In, Out any](
	ctx context.Context,
	in <-chan In,
	fn ProcessFunc[In, Out],
	cfg Config,
) <-chan Out {
	cfg = cfg.parse()
	w := &workers[In, Out]{
		cfg:   cfg,
		fn:    fn,
		out:   make(chan Out, cfg.BufferSize),
		abort: make(chan struct{}),
		idle:  make(chan struct{}),
	}

	var wg sync.WaitGroup
	for range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.work(ctx, in)
		}()
	}
	go func() {
		wg.Wait()
		close(w.idle)
	}()
	go w.supervise(ctx)

	return w.out
}

func (w *workers[In, Out]) work(ctx context.Context, in <-chan In) {
	for {
		var val In
		select {
		case <-w.abort:
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			val = v
		}
		if !w.handle(ctx, val) {
			return
		}
	}
}

// handle reports false when the worker must stop.
func (w *workers[In, Out]) handle(ctx context.Context, val In) bool {
	res, err := w.fn(ctx, val)
	if err != nil {
		w.cfg.ErrorHandler(val, err)
		return true
	}
	for _, r := range res {
		select {
		case w.out <- r:
		case <-w.abort:
			w.cfg.ErrorHandler(val, ErrShutdownDropped)
			return false
		}
	}
	return true
}

func (w *workers[In, Out]) supervise(ctx context.Context) {
	defer close(w.out)

	select {
	case <-w.idle:
	case <-ctx.Done():
		grace := time.NewTimer(w.cfg.ShutdownTimeout)
		select {
		case <-w.idle:
		case <-grace.C:
			close(w.abort)
			<-w.idle
		}
		grace.Stop()
	}
	w.cleanup()
}

func (w *workers[In, Out]) cleanup() {
	if w.cfg.CleanupHandler == nil {
		return
	}
	ctx := context.Background()
	if w.cfg.CleanupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.CleanupTimeout)
		defer cancel()
	}
	w.cfg.CleanupHandler(ctx)
}

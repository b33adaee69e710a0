package pipe

import (
	"context"
	"errors"
	"sync"
)

// ErrDistributorClosed is returned by AddOutput after the distributor stopped.
var ErrDistributorClosed = errors.New("pipe: distributor closed")

// Distributor routes values from one input to the first matching output.
//
//	dist := pipe.NewDistributor(pipe.DistributorConfig[*message.Exchange]{})
//	timedOut, _ := dist.AddOutput(isTimeout)
//	rest, _ := dist.AddOutput(nil)
//	done, _ := dist.Distribute(ctx, results)
type Distributor[T any] struct {
	cfg DistributorConfig[T]

	mu      sync.RWMutex
	outputs []output[T]
	started bool
	closed  bool
}

type output[T any] struct {
	ch    chan T
	match func(T) bool
}

// DistributorConfig configures a Distributor.
type DistributorConfig[T any] struct {
	// Buffer is the buffer size of each output channel.
	Buffer int
	// NoMatchHandler receives values no output matched. Default drops them.
	NoMatchHandler func(T)
}

// NewDistributor creates a Distributor. Add outputs before calling Distribute.
func NewDistributor[T any](cfg DistributorConfig[T]) *Distributor[T] {
	return &Distributor[T]{cfg: cfg}
}

// AddOutput registers an output. A nil match accepts every value.
// Outputs are tried in the order they were added.
func (d *Distributor[T]) AddOutput(match func(T) bool) (<-chan T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDistributorClosed
	}
	ch := make(chan T, d.cfg.Buffer)
	d.outputs = append(d.outputs, output[T]{ch: ch, match: match})
	return ch, nil
}

// Distribute routes values from in until in is closed, then closes all outputs.
// When ctx is canceled, values still in flight are dropped to NoMatchHandler.
// The returned channel closes once all outputs are closed.
func (d *Distributor[T]) Distribute(ctx context.Context, in <-chan T) (<-chan struct{}, error) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range in {
			d.route(ctx, v)
		}

		d.mu.Lock()
		d.closed = true
		for _, out := range d.outputs {
			close(out.ch)
		}
		d.mu.Unlock()
	}()
	return done, nil
}

func (d *Distributor[T]) route(ctx context.Context, v T) {
	d.mu.RLock()
	outputs := d.outputs
	d.mu.RUnlock()

	for _, out := range outputs {
		if out.match != nil && !out.match(v) {
			continue
		}
		select {
		case out.ch <- v:
			return
		case <-ctx.Done():
		}
		break
	}
	if d.cfg.NoMatchHandler != nil {
		d.cfg.NoMatchHandler(v)
	}
}

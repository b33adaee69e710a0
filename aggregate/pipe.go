package aggregate

import (
	"context"

	"github.com/fxsml/goaggregate/message"
	"github.com/fxsml/goaggregate/pipe"
	"github.com/fxsml/goaggregate/pipe/middleware"
)

// Pipe is a pipe stage that aggregates incoming exchanges and emits completed results.
type Pipe struct {
	agg  *Aggregator
	sink *pipe.ProcessPipe[*message.Exchange, struct{}]
	out  chan *message.Exchange
	ctx  context.Context
}

// NewPipe creates an aggregating pipe stage.
//
// Incoming exchanges are processed by pcfg.Concurrency workers. Completed
// results are sent to the output channel in addition to cfg.Output, if set.
// When the input closes, the aggregator is stopped (completing open groups if
// cfg.CompleteAllOnStop is set) and the output channel is closed.
// Failed exchanges and recovered panics are reported to pcfg.ErrorHandler.
func NewPipe(cfg Config, pcfg pipe.Config) (*Pipe, error) {
	p := &Pipe{
		out: make(chan *message.Exchange, pcfg.BufferSize),
	}

	output := cfg.Output
	cfg.Output = func(ctx context.Context, result *message.Exchange) {
		if output != nil {
			output(ctx, result)
		}
		select {
		case p.out <- result:
		case <-p.ctx.Done():
			pcfg.ErrorHandler(result, pipe.ErrShutdownDropped)
		}
	}

	agg, err := New(cfg)
	if err != nil {
		return nil, err
	}
	p.agg = agg
	if pcfg.ErrorHandler == nil {
		logger := agg.cfg.Logger
		pcfg.ErrorHandler = func(in any, err error) {
			logger.Error("Aggregation failed", "component", "aggregator", "input", in, "error", err)
		}
	}

	cleanup := pcfg.CleanupHandler
	pcfg.CleanupHandler = func(ctx context.Context) {
		agg.Stop()
		if cleanup != nil {
			cleanup(ctx)
		}
	}
	p.sink = pipe.NewSinkPipe(agg.Process, pcfg)
	if err := p.sink.ApplyMiddleware(middleware.Recover[*message.Exchange, struct{}]()); err != nil {
		return nil, err
	}
	return p, nil
}

// Aggregator returns the underlying aggregator, for force completion and statistics.
func (p *Pipe) Aggregator() *Aggregator {
	return p.agg
}

// ApplyMiddleware adds middleware around the per-exchange processing.
func (p *Pipe) ApplyMiddleware(mw ...middleware.Middleware[*message.Exchange, struct{}]) error {
	return p.sink.ApplyMiddleware(mw...)
}

// Pipe starts the aggregator and the workers.
// Pipe may only be called once.
func (p *Pipe) Pipe(ctx context.Context, in <-chan *message.Exchange) (<-chan *message.Exchange, error) {
	p.ctx = ctx
	if err := p.agg.Start(ctx); err != nil {
		return nil, err
	}
	done, err := p.sink.Pipe(ctx, in)
	if err != nil {
		p.agg.Stop()
		return nil, err
	}
	go func() {
		for range done {
		}
		close(p.out)
	}()
	return p.out, nil
}

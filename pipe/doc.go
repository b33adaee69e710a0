// Package pipe runs processing functions on a pool of workers between channels.
//
// A [ProcessPipe] reads from an input channel, applies its function with the
// configured concurrency, and writes results to an output channel that is
// closed once the input is drained. Errors go to [Config.ErrorHandler].
//
//	p := pipe.NewTransformPipe(
//		func(ctx context.Context, ex *message.Exchange) (*message.Exchange, error) {
//			return enrich(ex), nil
//		},
//		pipe.Config{Concurrency: 4},
//	)
//	_ = p.ApplyMiddleware(middleware.Recover[*message.Exchange, *message.Exchange]())
//	out, err := p.Pipe(ctx, in)
//
// Pipes: [NewProcessPipe], [NewTransformPipe], [NewSinkPipe]. [Apply] chains two pipes.
//
// Cross-cutting behavior such as panic recovery, per-call timeouts and metrics
// is added with the middleware package.
package pipe

package cloudevents

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudevents/sdk-go/v2/binding"
	"github.com/cloudevents/sdk-go/v2/protocol"

	"github.com/fxsml/goaggregate/message"
	"github.com/fxsml/goaggregate/pipe"
	"github.com/fxsml/goaggregate/pipe/middleware"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Source is the event source of results without a source header.
	Source string
	// Concurrency is the number of send goroutines (default: 1).
	Concurrency int
	// SendTimeout bounds each send. Zero waits for the sender.
	SendTimeout time.Duration
	// ErrorHandler is called on conversion and send errors.
	ErrorHandler func(ex *message.Exchange, err error)
	// Logger is used for logging (default: slog.Default()).
	Logger message.Logger
}

// Publisher sends exchanges as events through a protocol.Sender.
type Publisher struct {
	sender protocol.Sender
	source string
	sink   *pipe.ProcessPipe[*message.Exchange, struct{}]
}

// NewPublisher creates a Publisher for sender.
func NewPublisher(sender protocol.Sender, cfg PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = "goaggregate"
	}

	p := &Publisher{sender: sender, source: cfg.Source}
	p.sink = pipe.NewSinkPipe(p.send, pipe.Config{
		Name:        "cloudevents-publisher",
		Concurrency: cfg.Concurrency,
		ErrorHandler: func(in any, err error) {
			ex, _ := in.(*message.Exchange)
			logger.Error("Sending event failed", "component", "publisher", "error", err)
			if cfg.ErrorHandler != nil {
				cfg.ErrorHandler(ex, err)
			}
		},
	})
	_ = p.sink.ApplyMiddleware(middleware.Timeout[*message.Exchange, struct{}](cfg.SendTimeout))
	return p
}

// ApplyMiddleware wraps the send function, for example with timeouts or metrics.
// Must be called before Publish.
func (p *Publisher) ApplyMiddleware(mw ...middleware.Middleware[*message.Exchange, struct{}]) error {
	return p.sink.ApplyMiddleware(mw...)
}

// Publish sends every exchange from in until in is closed.
// The returned channel closes when publishing is complete.
func (p *Publisher) Publish(ctx context.Context, in <-chan *message.Exchange) (<-chan struct{}, error) {
	return p.sink.Pipe(ctx, in)
}

func (p *Publisher) send(ctx context.Context, ex *message.Exchange) error {
	event, err := ToEvent(ex, p.source)
	if err != nil {
		return err
	}
	if result := p.sender.Send(ctx, binding.ToMessage(event)); !protocol.IsACK(result) {
		return result
	}
	return nil
}

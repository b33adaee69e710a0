package cloudevents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/cloudevents/sdk-go/v2/binding"
	"github.com/cloudevents/sdk-go/v2/protocol"

	"github.com/fxsml/goaggregate/message"
	"github.com/fxsml/goaggregate/pipe"
)

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	// Buffer is the output channel buffer size (default: 100).
	Buffer int
	// Concurrency is the number of receive goroutines (default: 1).
	Concurrency int
	// ErrorHandler is called on receive and conversion errors.
	ErrorHandler func(err error)
	// Logger is used for logging (default: slog.Default()).
	Logger message.Logger
}

// Subscriber receives events from a protocol.Receiver and emits them as exchanges.
// Events are finished (acknowledged) once converted; aggregation is not transactional.
type Subscriber struct {
	receiver protocol.Receiver
	logger   message.Logger
	gen      *pipe.Generator[*message.Exchange]

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewSubscriber creates a Subscriber for receiver.
func NewSubscriber(receiver protocol.Receiver, cfg SubscriberConfig) *Subscriber {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}

	s := &Subscriber{receiver: receiver, logger: logger}
	s.gen = pipe.NewGenerator(s.receive, pipe.Config{
		Name:        "cloudevents-subscriber",
		Concurrency: cfg.Concurrency,
		BufferSize:  cfg.Buffer,
		ErrorHandler: func(_ any, err error) {
			logger.Error("Receiving event failed", "component", "subscriber", "error", err)
			if cfg.ErrorHandler != nil {
				cfg.ErrorHandler(err)
			}
		},
	})
	return s
}

// Subscribe starts receiving. The returned channel is closed when ctx is
// canceled or the receiver reports io.EOF.
// Returns pipe.ErrAlreadyStarted if Subscribe has already been called.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *message.Exchange, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, pipe.ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	return s.gen.Generate(ctx)
}

func (s *Subscriber) receive(ctx context.Context) ([]*message.Exchange, error) {
	msg, err := s.receiver.Receive(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.cancel()
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}

	event, err := binding.ToEvent(ctx, msg)
	if err != nil {
		s.finish(msg, err)
		return nil, err
	}
	ex, err := FromEvent(event)
	s.finish(msg, err)
	if err != nil {
		return nil, err
	}
	return []*message.Exchange{ex}, nil
}

func (s *Subscriber) finish(msg binding.Message, err error) {
	if ferr := msg.Finish(err); ferr != nil {
		s.logger.Warn("Finishing event failed", "component", "subscriber", "error", ferr)
	}
}

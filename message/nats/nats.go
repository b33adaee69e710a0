// Package nats connects aggregators to NATS subjects.
//
// A [Subscriber] turns messages on a subject (wildcards allowed) into
// exchanges; NATS headers become exchange headers and JSON payloads are
// decoded into the body. A [Publisher] encodes completed aggregates as JSON
// and publishes them with the aggregation result in NATS headers.
//
//	sub := nats.NewSubscriber(nats.SubscriberConfig{URL: url, Subject: "orders.>"})
//	in := sub.Subscribe(ctx)
//	out, _ := aggPipe.Pipe(ctx, in)
//
//	pub := nats.NewPublisher(nats.PublisherConfig{URL: url, Subject: "orders.complete"})
//	_ = pub.Connect(ctx)
//	_ = pub.PublishAll(ctx, out)
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fxsml/goaggregate/message"
	"github.com/fxsml/goaggregate/message/codec"
)

// Headers set on received exchanges.
const (
	HeaderSubject = "nats.subject"
	HeaderReply   = "nats.reply"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("nats: not connected")

// SubscriberConfig configures the NATS subscriber.
type SubscriberConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Subject is the NATS subject to subscribe to.
	// Supports wildcards: "*" (single token), ">" (multiple tokens).
	Subject string

	// Queue is the optional queue group name for load balancing.
	Queue string

	// BufferSize is the channel buffer size for received messages.
	// Default is 256.
	BufferSize int

	// ConnectTimeout is the timeout for initial connection.
	// Default is 5 seconds.
	ConnectTimeout time.Duration

	// Decode converts payloads. Default is codec.DecodeJSON.
	Decode codec.Decoder

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SubscriberConfig) applyDefaults() SubscriberConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Decode == nil {
		c.Decode = codec.DecodeJSON
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Subscriber receives exchanges from a NATS subject.
type Subscriber struct {
	config SubscriberConfig
	ready  chan struct{}
	once   sync.Once
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(config SubscriberConfig) *Subscriber {
	return &Subscriber{
		config: config.applyDefaults(),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the subscription is active or has failed to start.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe returns a channel of exchanges from the configured subject.
// The channel closes when ctx is canceled or the connection cannot be established.
func (s *Subscriber) Subscribe(ctx context.Context) <-chan *message.Exchange {
	out := make(chan *message.Exchange, s.config.BufferSize)
	log := s.config.Logger

	go func() {
		defer close(out)
		defer s.once.Do(func() { close(s.ready) })

		conn, err := nats.Connect(
			s.config.URL,
			nats.Timeout(s.config.ConnectTimeout),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					log.Warn("NATS disconnected", "component", "subscriber", "error", err)
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Info("NATS reconnected", "component", "subscriber")
			}),
		)
		if err != nil {
			log.Error("Failed to connect to NATS", "component", "subscriber", "error", err, "url", s.config.URL)
			return
		}
		defer conn.Close()

		msgCh := make(chan *nats.Msg, s.config.BufferSize)
		var sub *nats.Subscription
		if s.config.Queue != "" {
			sub, err = conn.ChanQueueSubscribe(s.config.Subject, s.config.Queue, msgCh)
		} else {
			sub, err = conn.ChanSubscribe(s.config.Subject, msgCh)
		}
		if err == nil {
			err = conn.Flush()
		}
		if err != nil {
			log.Error("Failed to subscribe", "component", "subscriber", "error", err, "subject", s.config.Subject)
			return
		}
		defer func() { _ = sub.Unsubscribe() }()

		log.Info("NATS subscription started",
			"component", "subscriber",
			"subject", s.config.Subject,
			"queue", s.config.Queue)
		s.once.Do(func() { close(s.ready) })

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgCh:
				ex, err := s.toExchange(msg)
				if err != nil {
					log.Warn("Dropping undecodable message",
						"component", "subscriber",
						"subject", msg.Subject,
						"error", err)
					continue
				}
				select {
				case out <- ex:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (s *Subscriber) toExchange(msg *nats.Msg) (*message.Exchange, error) {
	body, err := s.config.Decode(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("nats: decode %s: %w", msg.Subject, err)
	}
	headers := message.Headers{
		"subject":     msg.Subject,
		"source":      s.config.URL,
		HeaderSubject: msg.Subject,
	}
	if msg.Reply != "" {
		headers[HeaderReply] = msg.Reply
	}
	for k, v := range msg.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return message.New(body, headers), nil
}

// PublisherConfig configures the NATS publisher.
type PublisherConfig struct {
	// URL is the NATS server URL.
	URL string

	// Subject is the default subject. The "nats.subject" header of an
	// aggregate is not used; results always go to Subject.
	Subject string

	// ConnectTimeout is the timeout for initial connection.
	// Default is 5 seconds.
	ConnectTimeout time.Duration

	// FlushTimeout bounds the flush after PublishAll drains its input.
	// Default is 1 second.
	FlushTimeout time.Duration

	// Encode converts exchanges to payloads. Default is codec.EncodeJSON.
	Encode codec.Encoder

	// Logger for operational logging.
	Logger *slog.Logger
}

func (c PublisherConfig) applyDefaults() PublisherConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = time.Second
	}
	if c.Encode == nil {
		c.Encode = codec.EncodeJSON
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Publisher publishes aggregates to a NATS subject.
type Publisher struct {
	config PublisherConfig
	conn   *nats.Conn
	mu     sync.Mutex
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(config PublisherConfig) *Publisher {
	return &Publisher{config: config.applyDefaults()}
}

// Connect establishes the NATS connection.
func (p *Publisher) Connect(ctx context.Context) error {
	conn, err := nats.Connect(p.config.URL, nats.Timeout(p.config.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("nats: connect: %w", err)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return nil
}

// Publish publishes ex to subject.
func (p *Publisher) Publish(ctx context.Context, subject string, ex *message.Exchange) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := p.config.Encode(ex)
	if err != nil {
		return fmt.Errorf("nats: encode %s: %w", ex.ID, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data, Header: headersOf(ex)}
	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish to %s: %w", subject, err)
	}
	return nil
}

// PublishAll publishes every exchange from in to the configured subject
// until in is closed or ctx is canceled. Failed publishes are logged and skipped.
func (p *Publisher) PublishAll(ctx context.Context, in <-chan *message.Exchange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ex, ok := <-in:
			if !ok {
				return p.flush()
			}
			if err := p.Publish(ctx, p.config.Subject, ex); err != nil {
				p.config.Logger.Error("Failed to publish aggregate",
					"component", "publisher",
					"subject", p.config.Subject,
					"exchange_id", ex.ID,
					"error", err)
				continue
			}
			p.config.Logger.Debug("Published aggregate",
				"component", "publisher",
				"subject", p.config.Subject,
				"exchange_id", ex.ID)
		}
	}
}

func (p *Publisher) flush() error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.FlushTimeout(p.config.FlushTimeout); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

func headersOf(ex *message.Exchange) nats.Header {
	h := nats.Header{}
	for k, v := range codec.ResultHeaders(ex, HeaderSubject, HeaderReply, "subject", "source") {
		h[k] = []string{v}
	}
	return h
}

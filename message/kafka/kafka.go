// Package kafka connects aggregators to Kafka topics.
//
// A [Subscriber] reads topics as a member of a consumer group and commits
// each offset once the exchange is handed to the aggregator. A [Publisher]
// writes completed aggregates keyed by their correlation key, so results of
// one key stay in one partition.
//
//	sub := kafka.NewSubscriber(kafka.SubscriberConfig{
//		Brokers:       []string{"localhost:9092"},
//		Topics:        []string{"order-lines"},
//		ConsumerGroup: "orders-aggregator",
//	})
//	out, _ := aggPipe.Pipe(ctx, sub.Subscribe(ctx))
//
//	pub := kafka.NewPublisher(kafka.PublisherConfig{Brokers: brokers, Topic: "orders"})
//	_ = pub.Connect(ctx)
//	_ = pub.PublishAll(ctx, out)
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fxsml/goaggregate/aggregate"
	"github.com/fxsml/goaggregate/message"
	"github.com/fxsml/goaggregate/message/codec"
)

// Headers set on received exchanges.
const (
	HeaderTopic     = "kafka.topic"
	HeaderPartition = "kafka.partition"
	HeaderOffset    = "kafka.offset"
	HeaderKey       = "kafka.key"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("kafka: not connected")

// SubscriberConfig configures the Kafka subscriber.
type SubscriberConfig struct {
	// Brokers lists the bootstrap broker addresses.
	Brokers []string

	// Topics to consume. Kafka has no wildcard subscriptions.
	Topics []string

	// ConsumerGroup shares partitions between aggregator instances.
	ConsumerGroup string

	// StartOffset applies when the group has no committed offset:
	// kafka.FirstOffset or kafka.LastOffset. Default is kafka.LastOffset.
	StartOffset int64

	// CommitInterval batches offset commits. Zero commits synchronously.
	CommitInterval time.Duration

	// MaxWait bounds a single fetch. Default is 1 second.
	MaxWait time.Duration

	// BufferSize is the output channel buffer size. Default is 256.
	BufferSize int

	// Decode converts payloads. Default is codec.DecodeJSON.
	Decode codec.Decoder

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SubscriberConfig) applyDefaults() SubscriberConfig {
	if c.StartOffset == 0 {
		c.StartOffset = kafka.LastOffset
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Decode == nil {
		c.Decode = codec.DecodeJSON
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Subscriber receives exchanges from Kafka topics.
type Subscriber struct {
	config SubscriberConfig
}

// NewSubscriber creates a new Kafka subscriber.
func NewSubscriber(config SubscriberConfig) *Subscriber {
	return &Subscriber{config: config.applyDefaults()}
}

// Subscribe returns a channel of exchanges from the configured topics.
// The channel closes when ctx is canceled.
func (s *Subscriber) Subscribe(ctx context.Context) <-chan *message.Exchange {
	out := make(chan *message.Exchange, s.config.BufferSize)
	log := s.config.Logger

	go func() {
		defer close(out)

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        s.config.Brokers,
			GroupID:        s.config.ConsumerGroup,
			GroupTopics:    s.config.Topics,
			StartOffset:    s.config.StartOffset,
			CommitInterval: s.config.CommitInterval,
			MaxWait:        s.config.MaxWait,
		})
		defer func() { _ = reader.Close() }()

		log.Info("Kafka subscription started",
			"component", "subscriber",
			"topics", s.config.Topics,
			"group", s.config.ConsumerGroup)

		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("Failed to fetch message", "component", "subscriber", "error", err)
				continue
			}

			ex, err := fromMessage(msg, s.config.Decode)
			if err != nil {
				log.Warn("Skipping undecodable message",
					"component", "subscriber",
					"topic", msg.Topic,
					"offset", msg.Offset,
					"error", err)
				s.commit(reader, msg)
				continue
			}
			select {
			case out <- ex:
				s.commit(reader, msg)
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (s *Subscriber) commit(reader *kafka.Reader, msg kafka.Message) {
	// commits must not be canceled with the subscription
	if err := reader.CommitMessages(context.Background(), msg); err != nil {
		s.config.Logger.Error("Failed to commit offset",
			"component", "subscriber",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err)
	}
}

func fromMessage(msg kafka.Message, decode codec.Decoder) (*message.Exchange, error) {
	body, err := decode(msg.Value)
	if err != nil {
		return nil, fmt.Errorf("kafka: decode %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	headers := message.Headers{
		"subject":       msg.Topic,
		HeaderTopic:     msg.Topic,
		HeaderPartition: msg.Partition,
		HeaderOffset:    msg.Offset,
	}
	if len(msg.Key) > 0 {
		headers[HeaderKey] = string(msg.Key)
	}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	ex := message.New(body, headers)
	if !msg.Time.IsZero() {
		ex.Created = msg.Time
	}
	return ex, nil
}

// PublisherConfig configures the Kafka publisher.
type PublisherConfig struct {
	// Brokers lists the bootstrap broker addresses.
	Brokers []string

	// Topic is used by PublishAll.
	Topic string

	// BatchSize is the writer batch size. Default is 100.
	BatchSize int

	// BatchTimeout flushes incomplete batches. Default is 10ms.
	BatchTimeout time.Duration

	// RequiredAcks is kafka.RequireOne or kafka.RequireAll. Default is RequireAll.
	RequiredAcks kafka.RequiredAcks

	// Encode converts exchanges to payloads. Default is codec.EncodeJSON.
	Encode codec.Encoder

	// Logger for operational logging.
	Logger *slog.Logger
}

func (c PublisherConfig) applyDefaults() PublisherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = kafka.RequireAll
	}
	if c.Encode == nil {
		c.Encode = codec.EncodeJSON
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Publisher writes aggregates to Kafka topics, one writer per topic.
type Publisher struct {
	config  PublisherConfig
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewPublisher creates a new Kafka publisher.
func NewPublisher(config PublisherConfig) *Publisher {
	return &Publisher{config: config.applyDefaults()}
}

// Connect prepares the writers. Kafka connections are opened lazily on the
// first write.
func (p *Publisher) Connect(ctx context.Context) error {
	if len(p.config.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writers == nil {
		p.writers = make(map[string]*kafka.Writer)
	}
	return nil
}

func (p *Publisher) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writers == nil {
		return nil, ErrNotConnected
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: p.config.RequiredAcks,
	}
	p.writers[topic] = w
	return w, nil
}

// Publish writes ex to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, ex *message.Exchange) error {
	w, err := p.writer(topic)
	if err != nil {
		return err
	}
	msg, err := toMessage(ex, p.config.Encode)
	if err != nil {
		return err
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}
	return nil
}

// PublishAll writes every exchange from in to the configured topic until in
// is closed or ctx is canceled. Failed writes are logged and skipped.
func (p *Publisher) PublishAll(ctx context.Context, in <-chan *message.Exchange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ex, ok := <-in:
			if !ok {
				return nil
			}
			if err := p.Publish(ctx, p.config.Topic, ex); err != nil {
				p.config.Logger.Error("Failed to publish aggregate",
					"component", "publisher",
					"topic", p.config.Topic,
					"exchange_id", ex.ID,
					"error", err)
				continue
			}
			p.config.Logger.Debug("Published aggregate",
				"component", "publisher",
				"topic", p.config.Topic,
				"exchange_id", ex.ID)
		}
	}
}

// Close flushes and closes all writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka: close writer for %s: %w", topic, err))
		}
	}
	p.writers = nil
	return errors.Join(errs...)
}

func toMessage(ex *message.Exchange, encode codec.Encoder) (kafka.Message, error) {
	data, err := encode(ex)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode %s: %w", ex.ID, err)
	}
	msg := kafka.Message{Value: data}
	if key, ok := ex.Properties.String(aggregate.PropAggregatedCorrelationKey); ok {
		msg.Key = []byte(key)
	}
	for k, v := range codec.ResultHeaders(ex, HeaderTopic, HeaderPartition, HeaderOffset, HeaderKey, "subject") {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

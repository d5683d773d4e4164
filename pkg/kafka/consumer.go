package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig configures a group consumer on one topic.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxRetries is the number of handler attempts before a message is
	// dead-lettered and committed. Defaults to 3.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
}

// Consumer runs handler for every message on a topic, retrying failures
// and parking poison messages on the topic's DLQ.
type Consumer struct {
	reader    MessageReader
	dlq       MessageWriter
	handler   Handler
	cfg       ConsumerConfig
	metrics   *Metrics
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a reader-backed consumer. dlq may be nil, in which
// case poison messages are only logged.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq MessageWriter, metrics *Metrics, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg, handler, dlq, metrics, logger)
}

// NewConsumerWithReader builds a consumer around an existing reader.
func NewConsumerWithReader(r MessageReader, cfg ConsumerConfig, handler Handler, dlq MessageWriter, metrics *Metrics, logger *slog.Logger) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &Consumer{reader: r, dlq: dlq, handler: handler, cfg: cfg, metrics: metrics, logger: logger}
}

// NewDLQWriter returns a writer for dead-lettered messages. Topics are set
// per message.
func NewDLQWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
	)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("consumer stopping", slog.String("topic", c.cfg.Topic))
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles one message. It never returns an error: every outcome
// ends with the message being committed by the caller.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&msg.Headers))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "consume "+msg.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.ErrorContext(ctx, "undecodable message", slog.String("topic", msg.Topic), slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, err)
		return
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			break
		}
		c.logger.WarnContext(ctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.cfg.MaxRetries),
			slog.String("error", lastErr.Error()),
		)
		if attempt < c.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			}
		}
	}
	if c.metrics != nil {
		c.metrics.Duration.WithLabelValues(msg.Topic, c.cfg.GroupID).Observe(time.Since(start).Seconds())
	}

	if lastErr != nil {
		c.logger.ErrorContext(ctx, "handler failed after all retries",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
		)
		c.deadLetter(ctx, msg, lastErr)
		return
	}
	if c.metrics != nil {
		c.metrics.Processed.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.metrics != nil {
		c.metrics.Failed.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
	}
	if c.dlq == nil {
		return
	}
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(c.cfg.GroupID)},
		kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   DLQTopic(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to publish to DLQ",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader. Safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}

const tracerName = "github.com/storefront/orderreview/pkg/kafka"

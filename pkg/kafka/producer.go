package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig configures the underlying writer.
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
}

// Producer publishes envelopes keyed by aggregate id.
type Producer struct {
	writer  MessageWriter
	brokers []string
	metrics *Metrics
	logger  *slog.Logger
}

// NewProducer creates a synchronous, all-acks producer.
func NewProducer(cfg ProducerConfig, metrics *Metrics, logger *slog.Logger) *Producer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(w, cfg.Brokers, metrics, logger)
}

// NewProducerWithWriter builds a producer around an existing writer.
func NewProducerWithWriter(w MessageWriter, brokers []string, metrics *Metrics, logger *slog.Logger) *Producer {
	return &Producer{writer: w, brokers: brokers, metrics: metrics, logger: logger}
}

// Publish writes event to topic. The trace context of ctx travels in the
// message headers.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(event.EventType)},
		{Key: "source", Value: []byte(event.Source)},
	}
	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(event.CorrelationID)})
	}
	otel.GetTextMapPropagator().Inject(ctx, NewHeaderCarrier(&headers))

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   data,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.PublishErr.WithLabelValues(topic).Inc()
		}
		return fmt.Errorf("publish %s to %s: %w", event.EventType, topic, err)
	}
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(topic).Inc()
	}
	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
	)
	return nil
}

// Ping checks that at least one broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PingBrokers dials each broker in turn until one returns its broker list.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}

// Package kafka publishes and consumes domain events in a shared JSON
// envelope over segmentio/kafka-go.
package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope carried by every message.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent wraps data in an envelope with a fresh id and UTC timestamp.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}, nil
}

// WithCorrelationID sets the correlation id and returns e.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// UnmarshalEvent decodes an envelope.
func UnmarshalEvent(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}

// DecodeData decodes the payload into target.
func (e *Event) DecodeData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// TopicPrefix namespaces every topic this service touches.
const TopicPrefix = "ecommerce"

// Topic returns "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}

// DLQTopic returns the dead-letter topic for topic.
func DLQTopic(topic string) string {
	return TopicPrefix + ".dlq." + topic
}

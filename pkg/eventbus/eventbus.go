// Package eventbus defines the broker-agnostic publish/subscribe contract
// used for event notifications.
package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// Producer publishes messages under a routing key.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	PublishBatch(ctx context.Context, topic string, messages []*Message) error
	Close() error
}

// Consumer delivers the messages matching a binding key to a handler until
// Unsubscribe or Close.
type Consumer interface {
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Unsubscribe(topic string) error
	Close() error
}

// EventBus combines Producer and Consumer interfaces with health checking.
type EventBus interface {
	Producer
	Consumer

	// HealthCheck verifies connectivity to the message broker.
	HealthCheck(ctx context.Context) error
}

// Message represents a message to be published or consumed from a topic.
type Message struct {
	// ID is a unique identifier for the message.
	ID string

	// Key is the routing key the message was published or received with.
	Key string

	// Value is the serialized message payload.
	Value []byte

	// Headers contains arbitrary key-value metadata for the message.
	Headers map[string]string

	ContentType string

	// Timestamp is when the message was created.
	Timestamp time.Time
}

// MessageHandler processes one consumed message. A non-nil error requeues it.
type MessageHandler func(ctx context.Context, msg *Message) error

// NewMessage serializes payload and stamps the result with a fresh id.
func NewMessage(s Serializer, key string, payload any, now time.Time) (*Message, error) {
	data, err := s.Serialize(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:          uuid.NewString(),
		Key:         key,
		Value:       data,
		ContentType: s.ContentType(),
		Timestamp:   now.UTC(),
	}, nil
}

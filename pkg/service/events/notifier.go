package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nimburion/eventsvc/pkg/eventbus"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/resilience"
)

// Notification actions. The routing key is "events.<action>".
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// EventMessage is the payload published on every change. UserID is the
// creator of the event; the user who made the change travels in the
// actor_id header.
type EventMessage struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

// Notifier announces event changes.
type Notifier interface {
	Notify(ctx context.Context, action string, ev *Event, actorID string) error
}

// RoutingKey returns the topic an action is published on.
func RoutingKey(action string) string {
	return "events." + action
}

// BusNotifier publishes EventMessage values through an event bus producer.
type BusNotifier struct {
	producer   eventbus.Producer
	serializer eventbus.Serializer
	clock      func() time.Time
	log        logger.Logger
	breaker    *resilience.CircuitBreaker
	timeout    time.Duration
}

// NotifierOption customizes a BusNotifier.
type NotifierOption func(*BusNotifier)

// WithBreaker stops publishing while the broker keeps failing.
func WithBreaker(cb *resilience.CircuitBreaker) NotifierOption {
	return func(n *BusNotifier) { n.breaker = cb }
}

// WithPublishTimeout bounds a single publish.
func WithPublishTimeout(d time.Duration) NotifierOption {
	return func(n *BusNotifier) { n.timeout = d }
}

func NewBusNotifier(producer eventbus.Producer, serializer eventbus.Serializer, clock func() time.Time, log logger.Logger, opts ...NotifierOption) *BusNotifier {
	if serializer == nil {
		serializer = eventbus.NewJSONSerializer()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = logger.NewNop()
	}
	n := &BusNotifier{producer: producer, serializer: serializer, clock: clock, log: log}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *BusNotifier) Notify(ctx context.Context, action string, ev *Event, actorID string) error {
	now := n.clock().UTC()
	payload := EventMessage{
		ID:        ev.ID.Hex(),
		Title:     ev.Title,
		Action:    action,
		Timestamp: now.Format(time.RFC3339Nano),
		UserID:    ev.CreatedBy.ID.Hex(),
	}
	key := RoutingKey(action)
	msg, err := eventbus.NewMessage(n.serializer, key, payload, now)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", action, err)
	}
	msg.Headers = map[string]string{"event_id": payload.ID, "action": action, "actor_id": actorID}
	if err := n.publish(ctx, key, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	n.log.WithContext(ctx).Debug("event notification published", "routing_key", key, "event_id", payload.ID)
	return nil
}

func (n *BusNotifier) publish(ctx context.Context, key string, msg *eventbus.Message) error {
	send := func() error {
		return resilience.WithTimeout(ctx, n.timeout, func(ctx context.Context) error {
			return n.producer.Publish(ctx, key, msg)
		})
	}
	if n.breaker == nil {
		return send()
	}
	return n.breaker.Execute(send)
}

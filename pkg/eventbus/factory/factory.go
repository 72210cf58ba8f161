package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/eventbus"
	"github.com/nimburion/eventsvc/pkg/eventbus/rabbitmq"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
)

// Cosa fa: seleziona e inizializza l'event bus adapter in base alla config
// e dichiara una coda per ogni azione configurata.
// Cosa NON fa: non supporta multipli bus attivi nella stessa factory call.
// Esempio minimo: bus, err := factory.NewEventBusAdapter(ctx, cfg.EventBus, reg.EventBus, log)
func NewEventBusAdapter(ctx context.Context, cfg config.EventBusConfig, m *metrics.EventBusMetrics, log logger.Logger) (eventbus.EventBus, error) {
	var base eventbus.EventBus

	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.EventBusTypeRabbitMQ:
		adapter, err := rabbitmq.NewAdapter(rabbitmq.Config{
			URL:              cfg.URL,
			Exchange:         cfg.Exchange,
			ExchangeType:     cfg.ExchangeType,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := adapter.DeclareQueues(ctx, ActionBindings(cfg.Actions)...); err != nil {
			_ = adapter.Close()
			return nil, err
		}
		base = adapter
	case config.EventBusTypeNone, "":
		log.Warn("event bus disabled, notifications stay in process")
		base = eventbus.NewMemoryBus()
	default:
		return nil, fmt.Errorf("unsupported eventbus.type %q (supported: rabbitmq, none)", cfg.Type)
	}

	return &instrumentedEventBus{base: base, metrics: m, log: log}, nil
}

// ActionBindings maps each action to a queue of the same name bound to
// "events.<action>".
func ActionBindings(actions []string) []rabbitmq.QueueBinding {
	bindings := make([]rabbitmq.QueueBinding, 0, len(actions))
	for _, action := range actions {
		bindings = append(bindings, rabbitmq.QueueBinding{Queue: action, RoutingKey: "events." + action})
	}
	return bindings
}

type instrumentedEventBus struct {
	base    eventbus.EventBus
	metrics *metrics.EventBusMetrics
	log     logger.Logger
}

func (b *instrumentedEventBus) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	err := b.base.Publish(ctx, topic, message)
	b.metrics.ObservePublish(topic, 1, err)
	if err != nil {
		b.log.WithContext(ctx).Error("publish failed", "routing_key", topic, "error", err)
	}
	return err
}

func (b *instrumentedEventBus) PublishBatch(ctx context.Context, topic string, messages []*eventbus.Message) error {
	err := b.base.PublishBatch(ctx, topic, messages)
	b.metrics.ObservePublish(topic, len(messages), err)
	return err
}

func (b *instrumentedEventBus) Subscribe(ctx context.Context, topic string, handler eventbus.MessageHandler) error {
	return b.base.Subscribe(ctx, topic, handler)
}

func (b *instrumentedEventBus) Unsubscribe(topic string) error {
	return b.base.Unsubscribe(topic)
}

func (b *instrumentedEventBus) HealthCheck(ctx context.Context) error {
	return b.base.HealthCheck(ctx)
}

func (b *instrumentedEventBus) Close() error {
	return b.base.Close()
}

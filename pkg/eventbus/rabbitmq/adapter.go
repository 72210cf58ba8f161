package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimburion/eventsvc/pkg/eventbus"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/tracing"
)

const messagingSystem = "rabbitmq"

// Adapter implements eventbus.EventBus for RabbitMQ.
type Adapter struct {
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	pubMu  sync.Mutex
	logger logger.Logger
	config Config
	subs   map[string]*subscription
	mu     sync.RWMutex
	closed bool
}

type subscription struct {
	channel *amqp.Channel
	queue   string
	cancel  context.CancelFunc
}

// Config holds RabbitMQ adapter configuration.
type Config struct {
	URL              string
	Exchange         string
	ExchangeType     string
	OperationTimeout time.Duration
	ConsumerTag      string
}

// QueueBinding declares a durable queue bound to the exchange.
type QueueBinding struct {
	Queue      string
	RoutingKey string
}

// Cosa fa: crea connessione/channel RabbitMQ e dichiara l'exchange durable.
// Cosa NON fa: non crea policy broker o dead-letter exchange.
// Esempio minimo: adapter, err := rabbitmq.NewAdapter(cfg, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "events"
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create rabbitmq channel: %w", err)
	}

	if err := pubCh.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = pubCh.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	a := &Adapter{
		conn:   conn,
		pubCh:  pubCh,
		logger: log,
		config: cfg,
		subs:   make(map[string]*subscription),
	}
	log.Info("RabbitMQ connection established", "exchange", cfg.Exchange, "exchange_type", cfg.ExchangeType)
	return a, nil
}

// DeclareQueues declares each queue as durable and binds it to the exchange.
// Declaring an existing queue with the same arguments is a no-op.
func (a *Adapter) DeclareQueues(ctx context.Context, bindings ...QueueBinding) error {
	if a.isClosed() {
		return eventbus.ErrClosed
	}
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create rabbitmq channel: %w", err)
	}
	defer ch.Close()

	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, a.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", b.Queue, b.RoutingKey, err)
		}
		a.logger.Debug("queue declared", "queue", b.Queue, "routing_key", b.RoutingKey)
	}
	return nil
}

// Publish sends a persistent message to the exchange with topic as routing key.
func (a *Adapter) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	if a.isClosed() {
		return eventbus.ErrClosed
	}
	if message == nil {
		return fmt.Errorf("message is required")
	}

	ctx, span := tracing.StartMessagingSpan(ctx, tracing.SpanOperationMsgPublish,
		tracing.WithMessagingSystem(messagingSystem),
		tracing.WithMessagingDestination(a.config.Exchange+"/"+topic),
		tracing.WithMessagingMessageID(message.ID),
	)

	ctx, cancel := context.WithTimeout(ctx, a.config.OperationTimeout)
	defer cancel()

	publishing := amqp.Publishing{
		MessageId:    message.ID,
		ContentType:  message.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         message.Value,
		Timestamp:    message.Timestamp,
		Headers:      toAMQPHeaders(message.Headers),
	}

	// amqp channels are not safe for concurrent publishing.
	a.pubMu.Lock()
	err := a.pubCh.PublishWithContext(ctx, a.config.Exchange, topic, false, false, publishing)
	a.pubMu.Unlock()
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("failed to publish rabbitmq message: %w", err)
	}
	return nil
}

// PublishBatch publishes messages in order and stops at the first failure.
func (a *Adapter) PublishBatch(ctx context.Context, topic string, messages []*eventbus.Message) error {
	for _, msg := range messages {
		if err := a.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe binds a server-named exclusive queue to topic and hands each
// delivery to handler in a background goroutine. Deliveries are acked on
// success and requeued on error.
func (a *Adapter) Subscribe(ctx context.Context, topic string, handler eventbus.MessageHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return eventbus.ErrClosed
	}
	if _, exists := a.subs[topic]; exists {
		return fmt.Errorf("already subscribed to topic: %s", topic)
	}

	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create consumer channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, a.config.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, a.config.ConsumerTag, false, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	a.subs[topic] = &subscription{channel: ch, queue: q.Name, cancel: cancel}
	go a.consumeLoop(subCtx, deliveries, handler)

	return nil
}

func (a *Adapter) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handler eventbus.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			msg := &eventbus.Message{
				ID:          d.MessageId,
				Key:         d.RoutingKey,
				Value:       d.Body,
				Headers:     fromAMQPHeaders(d.Headers),
				ContentType: d.ContentType,
				Timestamp:   d.Timestamp,
			}

			msgCtx, span := tracing.StartMessagingSpan(ctx, tracing.SpanOperationMsgConsume,
				tracing.WithMessagingSystem(messagingSystem),
				tracing.WithMessagingDestination(d.RoutingKey),
				tracing.WithMessagingMessageID(d.MessageId),
			)
			err := handler(msgCtx, msg)
			tracing.End(span, err)
			if err != nil {
				a.logger.Warn("message handler failed, requeueing", "routing_key", d.RoutingKey, "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Unsubscribe removes the subscription for the specified topic.
func (a *Adapter) Unsubscribe(topic string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.subs[topic]
	if !ok {
		return fmt.Errorf("not subscribed to topic: %s", topic)
	}
	sub.cancel()
	delete(a.subs, topic)
	if err := sub.channel.Close(); err != nil {
		return fmt.Errorf("failed to close subscription channel: %w", err)
	}
	return nil
}

// HealthCheck opens and closes a channel on the live connection.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return eventbus.ErrClosed
	}
	conn := a.conn
	a.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}

	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq health check failed: %w", err)
	}
	_ = ch.Close()
	select {
	case <-hcCtx.Done():
		return fmt.Errorf("rabbitmq health check timeout: %w", hcCtx.Err())
	default:
		return nil
	}
}

// Close cancels every subscription and closes the connection. It is safe to
// call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for topic, sub := range a.subs {
		sub.cancel()
		if err := sub.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscription %s: %w", topic, err))
		}
	}
	a.subs = map[string]*subscription{}

	if a.pubCh != nil {
		if err := a.pubCh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publish channel: %w", err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if a.logger != nil {
		a.logger.Info("RabbitMQ connection closed")
	}
	return errors.Join(errs...)
}

func (a *Adapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

func toAMQPHeaders(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	t := amqp.Table{}
	for k, v := range headers {
		t[k] = v
	}
	return t
}

func fromAMQPHeaders(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimburion/eventsvc/pkg/eventbus"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/testutil"
)

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(Config{}, logger.NewNop()); err == nil {
		t.Fatal("expected validation error for empty URL")
	}
}

func TestClosedAdapterOperations(t *testing.T) {
	a := &Adapter{closed: true, subs: map[string]*subscription{}}
	msg := &eventbus.Message{ID: "1", Value: []byte("v"), Timestamp: time.Now()}
	ctx := context.Background()

	if err := a.Publish(ctx, "events.created", msg); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("publish must fail when closed, got %v", err)
	}
	if err := a.PublishBatch(ctx, "events.created", []*eventbus.Message{msg}); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("publish batch must fail when closed, got %v", err)
	}
	if err := a.Subscribe(ctx, "events.#", func(context.Context, *eventbus.Message) error { return nil }); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("subscribe must fail when closed, got %v", err)
	}
	if err := a.DeclareQueues(ctx, QueueBinding{Queue: "created", RoutingKey: "events.created"}); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("declare must fail when closed, got %v", err)
	}
	if err := a.HealthCheck(ctx); err == nil {
		t.Fatal("healthcheck must fail when closed")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
}

func TestUnsubscribe_NotSubscribed(t *testing.T) {
	a := &Adapter{subs: map[string]*subscription{}}
	if err := a.Unsubscribe("missing"); err == nil {
		t.Fatal("expected error for missing subscription")
	}
}

func TestHeadersConversion(t *testing.T) {
	out := fromAMQPHeaders(toAMQPHeaders(map[string]string{"k1": "v1", "k2": "v2"}))
	if len(out) != 2 || out["k1"] != "v1" || out["k2"] != "v2" {
		t.Fatalf("unexpected conversion output: %#v", out)
	}
	if toAMQPHeaders(nil) != nil || fromAMQPHeaders(amqp.Table{}) != nil {
		t.Fatal("empty headers must convert to nil")
	}
}

func TestAdapter_Integration(t *testing.T) {
	url := testutil.StartRabbitMQ(t)
	ctx := context.Background()

	a, err := NewAdapter(Config{URL: url, Exchange: "events", OperationTimeout: 5 * time.Second}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	defer a.Close()

	if err := a.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	t.Run("DeclaredQueueReceivesRoutedMessages", func(t *testing.T) {
		if err := a.DeclareQueues(ctx,
			QueueBinding{Queue: "created", RoutingKey: "events.created"},
			QueueBinding{Queue: "deleted", RoutingKey: "events.deleted"},
		); err != nil {
			t.Fatalf("DeclareQueues() error = %v", err)
		}
		// A second declaration with the same arguments must succeed.
		if err := a.DeclareQueues(ctx, QueueBinding{Queue: "created", RoutingKey: "events.created"}); err != nil {
			t.Fatalf("DeclareQueues(again) error = %v", err)
		}

		msg, _ := eventbus.NewMessage(eventbus.NewJSONSerializer(), "events.created", map[string]string{"title": "x"}, time.Now())
		if err := a.Publish(ctx, "events.created", msg); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		ch, err := a.conn.Channel()
		if err != nil {
			t.Fatalf("Channel() error = %v", err)
		}
		defer ch.Close()

		var d amqp.Delivery
		var ok bool
		for i := 0; i < 50 && !ok; i++ {
			d, ok, err = ch.Get("created", true)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !ok {
				time.Sleep(100 * time.Millisecond)
			}
		}
		if !ok {
			t.Fatal("message never reached the created queue")
		}
		if d.MessageId != msg.ID || d.DeliveryMode != amqp.Persistent || d.ContentType != "application/json" {
			t.Fatalf("delivery = %+v", d)
		}
		if _, ok, _ := ch.Get("deleted", true); ok {
			t.Fatal("deleted queue must stay empty")
		}
	})

	t.Run("SubscribeAcksHandledMessages", func(t *testing.T) {
		got := make(chan *eventbus.Message, 1)
		if err := a.Subscribe(ctx, "events.updated", func(_ context.Context, m *eventbus.Message) error {
			got <- m
			return nil
		}); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer a.Unsubscribe("events.updated")

		msg, _ := eventbus.NewMessage(eventbus.NewJSONSerializer(), "events.updated", map[string]string{"title": "y"}, time.Now())
		if err := a.Publish(ctx, "events.updated", msg); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		select {
		case m := <-got:
			if m.ID != msg.ID || m.Key != "events.updated" {
				t.Fatalf("received %+v", m)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	})
}

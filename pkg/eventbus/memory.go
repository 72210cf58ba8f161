package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryBus is an in-process EventBus. Published messages are recorded and
// delivered synchronously to every subscription whose binding key matches.
// It backs local runs without a broker and tests.
type MemoryBus struct {
	mu        sync.RWMutex
	closed    bool
	published []*Message
	subs      map[string]MessageHandler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]MessageHandler{}}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return fmt.Errorf("message is required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	delivered := *message
	delivered.Key = topic
	b.published = append(b.published, &delivered)
	var handlers []MessageHandler
	for pattern, h := range b.subs {
		if MatchTopic(pattern, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, &delivered); err != nil {
			return fmt.Errorf("handler for %s failed: %w", topic, err)
		}
	}
	return nil
}

func (b *MemoryBus) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	for _, m := range messages {
		if err := b.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.subs[topic]; ok {
		return fmt.Errorf("already subscribed to topic: %s", topic)
	}
	b.subs[topic] = handler
	return nil
}

func (b *MemoryBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[topic]; !ok {
		return fmt.Errorf("not subscribed to topic: %s", topic)
	}
	delete(b.subs, topic)
	return nil
}

func (b *MemoryBus) HealthCheck(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[string]MessageHandler{}
	return nil
}

// Published returns a copy of every message published so far.
func (b *MemoryBus) Published() []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Message(nil), b.published...)
}

// MatchTopic reports whether key matches an AMQP topic binding pattern,
// where "*" stands for one dot separated word and "#" for zero or more.
func MatchTopic(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}

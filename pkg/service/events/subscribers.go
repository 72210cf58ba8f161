package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SubscribersKey is the set holding the subscribers of an event.
func SubscribersKey(eventID string) string {
	return fmt.Sprintf("event:%s:subscribers", eventID)
}

// SubscriberStore records which users follow an event. Subscriptions
// expire with the event.
type SubscriberStore interface {
	Subscribe(ctx context.Context, eventID, userID string, expireAt time.Time) error
	Subscribers(ctx context.Context, eventID string) ([]string, error)
}

// SetStore is the subset of the Redis adapter used for subscriber sets.
type SetStore interface {
	AddToSet(ctx context.Context, key string, expireAt time.Time, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// RedisSubscriberStore keeps one Redis set per event.
type RedisSubscriberStore struct {
	sets SetStore
}

func NewRedisSubscriberStore(sets SetStore) *RedisSubscriberStore {
	return &RedisSubscriberStore{sets: sets}
}

func (s *RedisSubscriberStore) Subscribe(ctx context.Context, eventID, userID string, expireAt time.Time) error {
	return s.sets.AddToSet(ctx, SubscribersKey(eventID), expireAt, userID)
}

func (s *RedisSubscriberStore) Subscribers(ctx context.Context, eventID string) ([]string, error) {
	members, err := s.sets.SetMembers(ctx, SubscribersKey(eventID))
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// MemorySubscriberStore is used when no cache is configured. Expiry is
// checked on read.
type MemorySubscriberStore struct {
	mu    sync.Mutex
	sets  map[string]map[string]struct{}
	until map[string]time.Time
	clock func() time.Time
}

func NewMemorySubscriberStore(clock func() time.Time) *MemorySubscriberStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemorySubscriberStore{
		sets:  map[string]map[string]struct{}{},
		until: map[string]time.Time{},
		clock: clock,
	}
}

func (s *MemorySubscriberStore) Subscribe(_ context.Context, eventID, userID string, expireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SubscribersKey(eventID)
	s.dropExpired(key)
	if s.sets[key] == nil {
		s.sets[key] = map[string]struct{}{}
	}
	s.sets[key][userID] = struct{}{}
	if !expireAt.IsZero() {
		s.until[key] = expireAt
	}
	return nil
}

func (s *MemorySubscriberStore) Subscribers(_ context.Context, eventID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SubscribersKey(eventID)
	s.dropExpired(key)
	out := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemorySubscriberStore) dropExpired(key string) {
	if until, ok := s.until[key]; ok && !s.clock().Before(until) {
		delete(s.sets, key)
		delete(s.until, key)
	}
}

package events

import (
	"context"
	"testing"
	"time"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	redisstore "github.com/nimburion/eventsvc/pkg/store/redis"
	"github.com/nimburion/eventsvc/pkg/testutil"
)

type recordedAdd struct {
	key      string
	expireAt time.Time
	members  []string
}

type fakeSets struct{ adds []recordedAdd }

func (f *fakeSets) AddToSet(_ context.Context, key string, expireAt time.Time, members ...string) error {
	f.adds = append(f.adds, recordedAdd{key: key, expireAt: expireAt, members: members})
	return nil
}

func (f *fakeSets) SetMembers(context.Context, string) ([]string, error) {
	return []string{"b", "a"}, nil
}

func TestRedisSubscriberStore_UsesEventKey(t *testing.T) {
	sets := &fakeSets{}
	store := NewRedisSubscriberStore(sets)
	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Subscribe(context.Background(), "abc", "u1", end); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(sets.adds) != 1 {
		t.Fatalf("adds = %+v", sets.adds)
	}
	got := sets.adds[0]
	if got.key != "event:abc:subscribers" || !got.expireAt.Equal(end) || len(got.members) != 1 || got.members[0] != "u1" {
		t.Fatalf("add = %+v", got)
	}
	members, _ := store.Subscribers(context.Background(), "abc")
	if members[0] != "a" {
		t.Fatalf("members not sorted: %v", members)
	}
}

func TestMemorySubscriberStore_Expires(t *testing.T) {
	clock := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemorySubscriberStore(func() time.Time { return clock })
	ctx := context.Background()

	_ = store.Subscribe(ctx, "e1", "u1", clock.Add(time.Hour))
	_ = store.Subscribe(ctx, "e1", "u1", clock.Add(time.Hour))
	if got, _ := store.Subscribers(ctx, "e1"); len(got) != 1 {
		t.Fatalf("subscribers = %v", got)
	}
	clock = clock.Add(time.Hour)
	if got, _ := store.Subscribers(ctx, "e1"); len(got) != 0 {
		t.Fatalf("expired subscribers = %v", got)
	}
}

func TestRedisSubscriberStore_Integration(t *testing.T) {
	testutil.SkipIfShort(t)
	url := testutil.StartRedis(t)

	adapter, err := redisstore.NewAdapter(redisstore.Config{URL: url, MaxConns: 5, OperationTimeout: 5 * time.Second}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	ctx := context.Background()
	store := NewRedisSubscriberStore(adapter)
	end := time.Now().Add(10 * time.Minute)
	for _, uid := range []string{"u2", "u1", "u2"} {
		if err := store.Subscribe(ctx, "evt", uid, end); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}
	members, err := store.Subscribers(ctx, "evt")
	if err != nil || len(members) != 2 || members[0] != "u1" {
		t.Fatalf("Subscribers() = %v, %v", members, err)
	}
	ttl, err := adapter.TTL(ctx, SubscribersKey("evt"))
	if err != nil || ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("TTL() = %v, %v", ttl, err)
	}
}

package document

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	mongostore "github.com/nimburion/eventsvc/pkg/store/mongodb"
	"github.com/nimburion/eventsvc/pkg/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestNewMongoDBExecutor_RequiresAdapter(t *testing.T) {
	if _, err := NewMongoDBExecutor(nil); err == nil {
		t.Fatal("expected error for nil adapter")
	}
}

func TestFindPipeline(t *testing.T) {
	p := findPipeline(Query{
		Collection: "events",
		Where:      Eq("status", "scheduled"),
		Sort:       []SortKey{{Field: "start_time", Ascending: false}, {Field: IDField, Ascending: true}},
		Skip:       10,
		Limit:      5,
		Projection: []string{"title", "created_by"},
		Links:      []LinkSpec{{Field: "created_by", Collection: "users"}},
	})

	var stages []string
	for _, stage := range p {
		stages = append(stages, stage[0].Key)
	}
	want := []string{"$match", "$sort", "$skip", "$limit", "$lookup", "$set", "$unset", "$project"}
	if !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if got := p[1][0].Value; !reflect.DeepEqual(got, bson.D{{Key: "start_time", Value: -1}, {Key: IDField, Value: 1}}) {
		t.Fatalf("$sort = %v", got)
	}
}

func TestMapMongoError(t *testing.T) {
	if mapMongoError(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	plain := errors.New("network")
	if got := mapMongoError(plain); got != plain {
		t.Fatalf("non duplicate errors pass through, got %v", got)
	}
}

// TestMongoDBExecutor_Integration runs the engine against a real MongoDB.
func TestMongoDBExecutor_Integration(t *testing.T) {
	url := testutil.StartMongo(t)
	ctx := context.Background()

	adapter, err := mongostore.NewAdapter(mongostore.Config{
		URL:              url,
		Database:         "docstore_it",
		OperationTimeout: 5 * time.Second,
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	defer adapter.Close()

	exec, err := NewMongoDBExecutor(adapter)
	if err != nil {
		t.Fatalf("NewMongoDBExecutor() error = %v", err)
	}
	cfg := Config{Executor: exec, Clock: tickingClock(baseTime), System: "mongodb"}
	users, _ := New[testUser](testUserShape, cfg)
	events, _ := New[testEvent](testEventShape, cfg)
	if err := users.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	alice, err := users.Create(ctx, &testUser{Email: "alice@example.com", Username: "alice"})
	if err != nil {
		t.Fatalf("Create(user) error = %v", err)
	}

	t.Run("UniqueConflict", func(t *testing.T) {
		_, err := users.Create(ctx, &testUser{Email: "alice@example.com", Username: "other"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	for i, title := range []string{"delta", "alpha", "charlie", "bravo"} {
		_, err := events.Create(ctx, &testEvent{
			Title:        title,
			Status:       "scheduled",
			MaxAttendees: 10 * (i + 1),
			StartTime:    baseTime.Add(time.Duration(i) * time.Hour),
			CreatedBy:    LinkTo[testUser](alice.ID),
		})
		if err != nil {
			t.Fatalf("Create(event) error = %v", err)
		}
	}

	t.Run("SortRangeAndPaging", func(t *testing.T) {
		byTitle, _ := testEventShape.Sort([]string{"title"})
		got, err := events.GetMany(ctx, FindOptions{
			Where: Compile(testEventFilters{MaxAttendees: &RangeFilter[int]{Min: ptr(20)}}, testEventShape),
			Sort:  byTitle,
			Skip:  1,
		})
		if err != nil {
			t.Fatalf("GetMany() error = %v", err)
		}
		if want := []string{"charlie", "delta"}; !reflect.DeepEqual(titles(got), want) {
			t.Fatalf("titles = %v, want %v", titles(got), want)
		}
	})

	t.Run("LinkResolution", func(t *testing.T) {
		got, err := events.GetOne(ctx, FindOptions{Where: Eq("title", "alpha"), ResolveLinks: true})
		if err != nil || got == nil {
			t.Fatalf("GetOne() = %v, %v", got, err)
		}
		if !got.CreatedBy.Resolved() || got.CreatedBy.Doc.Username != "alice" {
			t.Fatalf("link not resolved: %+v", got.CreatedBy)
		}
	})

	t.Run("SoftDeleteSharesInstant", func(t *testing.T) {
		n, err := events.Delete(ctx, Target[*testEvent]{Where: Lte("max_attendees", 20)})
		if err != nil || n != 2 {
			t.Fatalf("Delete() = %d, %v", n, err)
		}
		deleted, _ := events.GetMany(ctx, FindOptions{Where: Ne("deleted_at", nil)})
		if len(deleted) != 2 || !deleted[0].DeletedAt.Equal(*deleted[1].DeletedAt) {
			t.Fatalf("deleted = %+v", deleted)
		}
		if live, _ := events.Count(ctx, testEventShape.ExcludeDeleted(nil)); live != 2 {
			t.Fatalf("live = %d, want 2", live)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		first, err := users.UpsertOne(ctx, Eq("username", "bob"), Set{"email": "bob@example.com"}, Set{"email": "bob@example.com"})
		if err != nil || first == nil || first.Username != "bob" {
			t.Fatalf("UpsertOne(insert) = %+v, %v", first, err)
		}
		second, err := users.UpsertOne(ctx, Eq("username", "bob"), Set{"email": "robert@example.com"}, nil)
		if err != nil || second.ID != first.ID || second.Email != "robert@example.com" {
			t.Fatalf("UpsertOne(update) = %+v, %v", second, err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := users.UpsertOne(ctx, Eq("username", "dana"), nil, Set{"email": "dana@example.com"}); err != nil {
					t.Errorf("UpsertOne(concurrent) error = %v", err)
				}
			}()
		}
		wg.Wait()
		if n, _ := users.Count(ctx, Eq("username", "dana")); n != 1 {
			t.Fatalf("concurrent upserts stored %d documents, want 1", n)
		}
	})
}

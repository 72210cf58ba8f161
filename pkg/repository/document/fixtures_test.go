package document

import (
	"context"
	"sync"
	"testing"
	"time"
)

type testUser struct {
	Model      `bson:",inline"`
	Email      string `bson:"email"`
	Username   string `bson:"username"`
	IsVerified bool   `bson:"is_verified"`
}

type testEvent struct {
	Model        `bson:",inline"`
	Title        string         `bson:"title"`
	Status       string         `bson:"status"`
	MaxAttendees int            `bson:"max_attendees"`
	StartTime    time.Time      `bson:"start_time"`
	Tags         []string       `bson:"tags"`
	CreatedBy    Link[testUser] `bson:"created_by"`
	DeletedAt    *time.Time     `bson:"deleted_at,omitempty"`
}

type testEventFilters struct {
	StartTime    RangeFilter[time.Time] `json:"start_time"`
	MaxAttendees *RangeFilter[int]      `json:"max_attendees"`
	Status       *string                `json:"status"`
	Tags         []string               `json:"tags"`
	Unknown      *string                `json:"not_a_field"`
}

var (
	testUserShape  = NewShape[testUser]("users", WithUniqueIndex("email"), WithUniqueIndex("username"))
	testEventShape = NewShape[testEvent]("events", WithSoftDelete("deleted_at"), WithLink("created_by", "users"))
	// testNoteShape declares no soft-delete field.
	testNoteShape = NewShape[testUser]("notes")
)

var baseTime = time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

// tickingClock returns start+1s, start+2s, ... on successive calls.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type testRepos struct {
	exec   *MemoryExecutor
	users  *Repository[testUser, *testUser]
	events *Repository[testEvent, *testEvent]
	notes  *Repository[testUser, *testUser]
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()
	exec := NewMemoryExecutor()
	cfg := Config{Executor: exec, Clock: tickingClock(baseTime)}

	users, err := New[testUser](testUserShape, cfg)
	if err != nil {
		t.Fatalf("New(users) error = %v", err)
	}
	events, err := New[testEvent](testEventShape, cfg)
	if err != nil {
		t.Fatalf("New(events) error = %v", err)
	}
	notes, err := New[testUser](testNoteShape, cfg)
	if err != nil {
		t.Fatalf("New(notes) error = %v", err)
	}
	if err := users.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	return testRepos{exec: exec, users: users, events: events, notes: notes}
}

func mustCreateUser(t *testing.T, r testRepos, username string) *testUser {
	t.Helper()
	u, err := r.users.Create(context.Background(), &testUser{Email: username + "@example.com", Username: username})
	if err != nil {
		t.Fatalf("Create(user %s) error = %v", username, err)
	}
	return u
}

func mustCreateEvent(t *testing.T, r testRepos, e testEvent) *testEvent {
	t.Helper()
	created, err := r.events.Create(context.Background(), &e)
	if err != nil {
		t.Fatalf("Create(event %s) error = %v", e.Title, err)
	}
	return created
}

func titles(events []*testEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}

func ptr[V any](v V) *V { return &v }

package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/eventbus"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	authsvc "github.com/nimburion/eventsvc/pkg/service/auth"
)

var now = time.Date(2030, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	users  *authsvc.UserRepository
	events *EventRepository
	bus    *eventbus.MemoryBus
	subs   *MemorySubscriberStore
	svc    *Service
	alice  *authsvc.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	cfg := document.Config{Executor: document.NewMemoryExecutor(), Clock: func() time.Time { return now }}

	users, err := authsvc.NewUserRepository(cfg)
	if err != nil {
		t.Fatalf("NewUserRepository() error = %v", err)
	}
	events, err := NewEventRepository(cfg)
	if err != nil {
		t.Fatalf("NewEventRepository() error = %v", err)
	}
	alice, err := users.Create(ctx, &authsvc.User{Email: "alice@x.io", Username: "alice", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	bus := eventbus.NewMemoryBus()
	subs := NewMemorySubscriberStore(func() time.Time { return now })
	clock := func() time.Time { return now }
	svc := NewService(events, users, NewBusNotifier(bus, nil, clock, nil), subs, nil, WithClock(clock))
	return fixture{users: users, events: events, bus: bus, subs: subs, svc: svc, alice: alice}
}

func validCreate() EventCreate {
	return EventCreate{
		Title:       "Go meetup",
		Description: "Talks about generics",
		Location:    "Turin",
		StartTime:   "2030-03-10T18:00:00+01:00",
		EndTime:     "2030-03-10T21:00:00+01:00",
		Tags:        []string{"go"},
	}
}

func statusOf(t *testing.T, err error) (int, string) {
	t.Helper()
	var appErr *controller.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an AppError", err)
	}
	return appErr.HTTPStatus, appErr.Code
}

func publishedActions(t *testing.T, bus *eventbus.MemoryBus) []EventMessage {
	t.Helper()
	var out []EventMessage
	for _, m := range bus.Published() {
		var msg EventMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if m.Key != RoutingKey(msg.Action) {
			t.Fatalf("message %q published on %q", msg.Action, m.Key)
		}
		out = append(out, msg)
	}
	return out
}

func TestCreate_DefaultsAndNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Create(ctx, f.alice.ID.Hex(), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ev.MaxAttendees != DefaultMaxAttendees || ev.Status != StatusScheduled {
		t.Fatalf("defaults not applied: %+v", ev)
	}
	if want := time.Date(2030, 3, 10, 17, 0, 0, 0, time.UTC); !ev.StartTime.Equal(want) || ev.StartTime.Location() != time.UTC {
		t.Fatalf("start = %v, want %v in UTC", ev.StartTime, want)
	}
	if ev.CreatedBy == nil || ev.CreatedBy.Username != "alice" {
		t.Fatalf("created_by = %+v", ev.CreatedBy)
	}

	msgs := publishedActions(t, f.bus)
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	want := EventMessage{ID: ev.ID, Title: "Go meetup", Action: ActionCreated, Timestamp: now.Format(time.RFC3339Nano), UserID: f.alice.ID.Hex()}
	if msgs[0] != want {
		t.Fatalf("message = %+v, want %+v", msgs[0], want)
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     string
		mutate     func(*EventCreate)
		wantStatus int
		wantCode   string
	}{
		{"bad datetime", f.alice.ID.Hex(), func(e *EventCreate) { e.StartTime = "tomorrow" }, http.StatusUnprocessableEntity, controller.ReasonInvalidDatetime},
		{"end before start", f.alice.ID.Hex(), func(e *EventCreate) { e.EndTime = "2030-03-10T17:00:00+01:00" }, http.StatusUnprocessableEntity, controller.ReasonEndBeforeStart},
		{"in the past", f.alice.ID.Hex(), func(e *EventCreate) {
			e.StartTime = "2030-02-01T10:00:00Z"
			e.EndTime = "2030-02-01T12:00:00Z"
		}, http.StatusUnprocessableEntity, controller.ReasonDatetimeInPast},
		{"unknown creator", "000000000000000000000000", func(*EventCreate) {}, http.StatusNotFound, controller.ReasonUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate()
			tt.mutate(&req)
			_, err := f.svc.Create(ctx, tt.userID, req)
			status, code := statusOf(t, err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("got %d/%s, want %d/%s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
	if n := len(f.bus.Published()); n != 0 {
		t.Fatalf("rejected creates published %d messages", n)
	}
}

func TestUpdateDeleteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.alice.ID.Hex()

	ev, err := f.svc.Create(ctx, uid, validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	title := "Go meetup #2"
	canceled := StatusCanceled
	updated, err := f.svc.Update(ctx, ev.ID, uid, EventUpdate{Title: &title, Status: &canceled})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != title || updated.Status != StatusCanceled || updated.Location != "Turin" {
		t.Fatalf("Update() = %+v", updated)
	}

	deleted, err := f.svc.Delete(ctx, ev.ID, uid)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.DeletedAt == nil || !deleted.DeletedAt.Equal(now) {
		t.Fatalf("deleted_at = %v", deleted.DeletedAt)
	}
	if deleted.CreatedBy == nil {
		t.Fatal("deleted event lost its creator")
	}

	if _, err := f.svc.Get(ctx, ev.ID); err == nil {
		t.Fatal("soft-deleted event is still readable")
	} else if status, _ := statusOf(t, err); status != http.StatusNotFound {
		t.Fatalf("Get() after delete status = %d", status)
	}
	if _, err := f.svc.Delete(ctx, ev.ID, uid); err == nil {
		t.Fatal("second delete succeeded")
	}

	// The document is kept.
	n, err := f.events.Count(ctx, nil)
	if err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v", n, err)
	}

	var actions []string
	for _, m := range publishedActions(t, f.bus) {
		actions = append(actions, m.Action)
	}
	if len(actions) != 3 || actions[0] != ActionCreated || actions[1] != ActionUpdated || actions[2] != ActionDeleted {
		t.Fatalf("actions = %v", actions)
	}
}

func TestNotification_CreatorAndActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bob, err := f.users.Create(ctx, &authsvc.User{Email: "bob@x.io", Username: "bob", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ev, err := f.svc.Create(ctx, f.alice.ID.Hex(), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	title := "Go meetup, moved"
	if _, err := f.svc.Update(ctx, ev.ID, bob.ID.Hex(), EventUpdate{Title: &title}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := f.svc.Delete(ctx, ev.ID, bob.ID.Hex()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	published := f.bus.Published()
	msgs := publishedActions(t, f.bus)
	if len(msgs) != 3 {
		t.Fatalf("published %d messages", len(msgs))
	}
	wantActor := []string{f.alice.ID.Hex(), bob.ID.Hex(), bob.ID.Hex()}
	for i, msg := range msgs {
		if msg.UserID != f.alice.ID.Hex() {
			t.Fatalf("%s: user_id = %q, want creator %q", msg.Action, msg.UserID, f.alice.ID.Hex())
		}
		if got := published[i].Headers["actor_id"]; got != wantActor[i] {
			t.Fatalf("%s: actor_id = %q, want %q", msg.Action, got, wantActor[i])
		}
	}
}

func TestList_FiltersSortsAndExcludesDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.alice.ID.Hex()

	var ids []string
	for day := 10; day <= 14; day++ {
		req := validCreate()
		req.Title = time.Date(2030, 3, day, 0, 0, 0, 0, time.UTC).Format("Jan 2")
		req.StartTime = time.Date(2030, 3, day, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
		req.EndTime = time.Date(2030, 3, day, 11, 0, 0, 0, time.UTC).Format(time.RFC3339)
		ev, err := f.svc.Create(ctx, uid, req)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, ev.ID)
	}
	if _, err := f.svc.Delete(ctx, ids[1], uid); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	req := document.NewPageRequest[EventFilters]()
	req.PageSize = 2
	req.Order = []document.OrderItem{{Column: "start_time", Ascending: boolPtr(false)}}
	page, err := f.svc.List(ctx, req)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.TotalCount != 4 || page.Pages != 2 || len(page.Items) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].ID != ids[4] || page.Items[1].ID != ids[3] {
		t.Fatalf("order = %s, %s", page.Items[0].Title, page.Items[1].Title)
	}
	if page.Items[0].CreatedBy == nil {
		t.Fatal("list did not resolve created_by")
	}

	lo := time.Date(2030, 3, 11, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2030, 3, 13, 23, 0, 0, 0, time.UTC)
	req = document.NewPageRequest[EventFilters]()
	req.Filters = &EventFilters{StartTime: &document.RangeFilter[time.Time]{Min: &lo, Max: &hi}}
	page, err = f.svc.List(ctx, req)
	if err != nil {
		t.Fatalf("List(range) error = %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("range total = %d, want 2 (day 11 is deleted)", page.TotalCount)
	}

	req.Filters = &EventFilters{StartTime: &document.RangeFilter[time.Time]{Min: &hi, Max: &lo}}
	page, err = f.svc.List(ctx, req)
	if err != nil || page.TotalCount != 0 || len(page.Items) != 0 {
		t.Fatalf("inverted range = %+v, %v", page, err)
	}

	req = document.NewPageRequest[EventFilters]()
	req.SortBy = "not_a_field"
	if _, err := f.svc.List(ctx, req); err == nil {
		t.Fatal("unknown sort key accepted")
	} else if status, _ := statusOf(t, err); status != http.StatusUnprocessableEntity {
		t.Fatalf("unknown sort key status = %d", status)
	}
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev, err := f.svc.Create(ctx, f.alice.ID.Hex(), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, uid := range []string{"u2", "u1", "u2"} {
		sub, err := f.svc.Subscribe(ctx, ev.ID, uid)
		if err != nil {
			t.Fatalf("Subscribe(%s) error = %v", uid, err)
		}
		if !sub.ExpiresAt.Equal(ev.EndTime) {
			t.Fatalf("expires_at = %v, want %v", sub.ExpiresAt, ev.EndTime)
		}
	}
	members, err := f.svc.Subscribers(ctx, ev.ID)
	if err != nil || len(members) != 2 || members[0] != "u1" || members[1] != "u2" {
		t.Fatalf("Subscribers() = %v, %v", members, err)
	}

	if _, err := f.svc.Subscribe(ctx, "000000000000000000000000", "u1"); err == nil {
		t.Fatal("subscribed to a missing event")
	}
}

func boolPtr(b bool) *bool { return &b }

package events

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	authsvc "github.com/nimburion/eventsvc/pkg/service/auth"
)

// Service holds the event use cases.
type Service struct {
	events      *EventRepository
	users       *authsvc.UserRepository
	notifier    Notifier
	subscribers SubscriberStore
	clock       func() time.Time
	log         logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now for past-time checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = now }
}

// NewService wires the use cases. A nil notifier disables notifications.
func NewService(events *EventRepository, users *authsvc.UserRepository, notifier Notifier, subscribers SubscriberStore, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		events:      events,
		users:       users,
		notifier:    notifier,
		subscribers: subscribers,
		clock:       func() time.Time { return time.Now().UTC() },
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubscriptionResponse confirms a subscription.
type SubscriptionResponse struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create stores a new event owned by userID and announces it.
func (s *Service) Create(ctx context.Context, userID string, req EventCreate) (EventResponse, error) {
	start, end, err := req.Window()
	if err != nil {
		return EventResponse{}, err
	}
	now := s.clock()
	if start.Before(now) || end.Before(now) {
		return EventResponse{}, controller.NewValidationError(controller.ReasonDatetimeInPast,
			"start/end time cannot be in the past", nil)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return EventResponse{}, controller.NewInternalError("could not load user", err)
	}
	if user == nil {
		return EventResponse{}, controller.NewNotFoundError(controller.ReasonUserNotFound, "User not found")
	}

	ev := &Event{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    start,
		EndTime:      end,
		CreatedBy:    document.Link[authsvc.User]{ID: user.ID, Doc: user},
		Tags:         req.Tags,
		MaxAttendees: DefaultMaxAttendees,
		Status:       StatusScheduled,
	}
	if req.MaxAttendees != nil {
		ev.MaxAttendees = *req.MaxAttendees
	}
	if req.Status != "" {
		ev.Status = req.Status
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}

	created, err := s.events.Create(ctx, ev)
	if err != nil {
		return EventResponse{}, controller.NewInternalError("could not create event", err)
	}
	s.notify(ctx, ActionCreated, created, userID)
	return ToEventResponse(created), nil
}

// Get returns a live event with its creator.
func (s *Service) Get(ctx context.Context, id string) (EventResponse, error) {
	ev, err := s.load(ctx, id, true)
	if err != nil {
		return EventResponse{}, err
	}
	return ToEventResponse(ev), nil
}

// List returns one page of live events.
func (s *Service) List(ctx context.Context, req document.PageRequest[EventFilters]) (document.PageResponse[EventResponse], error) {
	page, err := document.Paginate(ctx, s.events.Repository, req, EventShape.ExcludeDeleted(document.MatchAll()), true)
	if err != nil {
		if errors.Is(err, document.ErrInvalidPage) || errors.Is(err, document.ErrInvalidSort) {
			return document.PageResponse[EventResponse]{}, controller.NewValidationError(controller.ReasonValidationFailed, err.Error(), nil)
		}
		return document.PageResponse[EventResponse]{}, controller.NewInternalError("could not list events", err)
	}
	return document.MapPage(page, ToEventResponse), nil
}

// Update applies the present fields of req and announces the change.
func (s *Service) Update(ctx context.Context, id, userID string, req EventUpdate) (EventResponse, error) {
	ev, err := s.load(ctx, id, false)
	if err != nil {
		return EventResponse{}, err
	}
	if set := req.Set(); len(set) > 0 {
		where := EventShape.ExcludeDeleted(document.Eq(document.IDField, ev.ID))
		if _, err := s.events.Update(ctx, document.Target[*Event]{Where: where}, set); err != nil {
			return EventResponse{}, controller.NewInternalError("could not update event", err)
		}
	}
	updated, err := s.load(ctx, id, true)
	if err != nil {
		return EventResponse{}, err
	}
	s.notify(ctx, ActionUpdated, updated, userID)
	return ToEventResponse(updated), nil
}

// Delete soft-deletes the event and returns it as deleted.
func (s *Service) Delete(ctx context.Context, id, userID string) (EventResponse, error) {
	ev, err := s.load(ctx, id, true)
	if err != nil {
		return EventResponse{}, err
	}
	creator := ev.CreatedBy.Doc
	if _, err := s.events.Delete(ctx, document.Target[*Event]{Docs: []*Event{ev}}); err != nil {
		return EventResponse{}, controller.NewInternalError("could not delete event", err)
	}
	ev.CreatedBy.Doc = creator
	s.notify(ctx, ActionDeleted, ev, userID)
	return ToEventResponse(ev), nil
}

// Subscribe adds userID to the subscribers of a live event until it ends.
func (s *Service) Subscribe(ctx context.Context, id, userID string) (SubscriptionResponse, error) {
	ev, err := s.load(ctx, id, false)
	if err != nil {
		return SubscriptionResponse{}, err
	}
	if err := s.subscribers.Subscribe(ctx, ev.ID.Hex(), userID, ev.EndTime); err != nil {
		return SubscriptionResponse{}, controller.NewInternalError("could not subscribe", err)
	}
	return SubscriptionResponse{EventID: ev.ID.Hex(), UserID: userID, ExpiresAt: ev.EndTime.UTC()}, nil
}

// Subscribers lists the user ids following a live event.
func (s *Service) Subscribers(ctx context.Context, id string) ([]string, error) {
	ev, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	members, err := s.subscribers.Subscribers(ctx, ev.ID.Hex())
	if err != nil {
		return nil, controller.NewInternalError("could not read subscribers", err)
	}
	return members, nil
}

func (s *Service) load(ctx context.Context, id string, resolveLinks bool) (*Event, error) {
	ev, err := s.events.GetByID(ctx, id, resolveLinks)
	if err != nil {
		return nil, controller.NewInternalError("could not load event", err)
	}
	if ev == nil {
		return nil, controller.NewNotFoundError(controller.ReasonEventNotFound, "Event not found")
	}
	return ev, nil
}

// notify never fails the request: the change is already stored.
func (s *Service) notify(ctx context.Context, action string, ev *Event, actorID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, action, ev, actorID); err != nil {
		s.log.WithContext(ctx).Error("event notification failed", "action", action, "event_id", ev.ID.Hex(), "error", err)
	}
}

package events

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/eventsvc/pkg/repository/document"
)

type EventRepository struct {
	*document.Repository[Event, *Event]
}

func NewEventRepository(cfg document.Config) (*EventRepository, error) {
	repo, err := document.New[Event](EventShape, cfg)
	if err != nil {
		return nil, err
	}
	return &EventRepository{Repository: repo}, nil
}

// GetByID returns the live event with the given hex id, or nil. Malformed
// ids and soft-deleted events match nothing.
func (r *EventRepository) GetByID(ctx context.Context, id string, resolveLinks bool) (*Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	where := r.Shape().ExcludeDeleted(document.Eq(document.IDField, oid))
	return r.GetUnique(ctx, where, resolveLinks)
}

// Package events implements event management: creation, lookup, listing,
// updates, soft deletion, subscriptions and change notifications.
package events

import (
	"time"

	"github.com/nimburion/eventsvc/pkg/repository/document"
	authsvc "github.com/nimburion/eventsvc/pkg/service/auth"
)

const EventCollection = "events"

// Status is the lifecycle state of an event.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// Event is a scheduled happening created by a user. Deleted events keep
// their document and carry DeletedAt.
type Event struct {
	document.Model `bson:",inline"`
	Title          string                      `bson:"title"`
	Description    string                      `bson:"description"`
	Location       string                      `bson:"location"`
	StartTime      time.Time                   `bson:"start_time"`
	EndTime        time.Time                   `bson:"end_time"`
	CreatedBy      document.Link[authsvc.User] `bson:"created_by"`
	Tags           []string                    `bson:"tags"`
	MaxAttendees   int                         `bson:"max_attendees"`
	Status         Status                      `bson:"status"`
	DeletedAt      *time.Time                  `bson:"deleted_at,omitempty"`
}

// EventShape declares soft deletion and the creator link.
var EventShape = document.NewShape[Event](EventCollection,
	document.WithSoftDelete("deleted_at"),
	document.WithLink("created_by", authsvc.UserCollection),
)

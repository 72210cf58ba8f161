package events

import (
	"strings"
	"time"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	authsvc "github.com/nimburion/eventsvc/pkg/service/auth"
)

const DefaultMaxAttendees = 10

// EventCreate is the body of POST /api/v1/events. Times are RFC 3339; a
// value without an offset is taken as UTC.
type EventCreate struct {
	Title        string   `json:"title" validate:"required,min=1,max=100"`
	Description  string   `json:"description" validate:"required,min=1,max=500"`
	Location     string   `json:"location" validate:"required,min=1"`
	StartTime    string   `json:"start_time" validate:"required"`
	EndTime      string   `json:"end_time" validate:"required"`
	Tags         []string `json:"tags"`
	MaxAttendees *int     `json:"max_attendees" validate:"omitempty,gt=0"`
	Status       Status   `json:"status" validate:"omitempty,oneof=scheduled canceled completed"`
}

// Validate checks that both times parse and that the event ends after it
// starts. Whether it lies in the past depends on the clock and is checked
// by the service.
func (e EventCreate) Validate() error {
	_, _, err := e.Window()
	return err
}

// Window returns the parsed start and end times in UTC.
func (e EventCreate) Window() (time.Time, time.Time, error) {
	start, err := ParseTime(e.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, invalidDatetime("start_time", e.StartTime)
	}
	end, err := ParseTime(e.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, invalidDatetime("end_time", e.EndTime)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, controller.NewValidationError(controller.ReasonEndBeforeStart,
			"end_time must be greater than start_time", nil)
	}
	return start, end, nil
}

var naiveLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// ParseTime accepts RFC 3339 and the same layouts without an offset, which
// are read as UTC. The result is always in UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if naive, nerr := time.ParseInLocation(layout, raw, time.UTC); nerr == nil {
			return naive, nil
		}
	}
	return time.Time{}, err
}

func invalidDatetime(field, value string) error {
	return controller.NewValidationError(controller.ReasonInvalidDatetime, "Invalid datetime",
		map[string]interface{}{field: value})
}

// EventUpdate is the body of PATCH /api/v1/events/{id}. Absent fields are
// left untouched.
type EventUpdate struct {
	Title  *string `json:"title" validate:"omitempty,min=1,max=100"`
	Status *Status `json:"status" validate:"omitempty,oneof=scheduled canceled completed"`
}

// Set lists the assignments the update makes.
func (u EventUpdate) Set() document.Set {
	set := document.Set{}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	return set
}

// EventFilters are the listing filters. Keys follow the stored field names.
type EventFilters struct {
	StartTime *document.RangeFilter[time.Time] `json:"start_time,omitempty"`
	EndTime   *document.RangeFilter[time.Time] `json:"end_time,omitempty"`
	Status    *Status                          `json:"status,omitempty"`
}

type EventResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Location     string                `json:"location"`
	StartTime    time.Time             `json:"start_time"`
	EndTime      time.Time             `json:"end_time"`
	CreatedBy    *authsvc.UserResponse `json:"created_by"`
	Tags         []string              `json:"tags"`
	MaxAttendees int                   `json:"max_attendees"`
	Status       Status                `json:"status"`
	DeletedAt    *time.Time            `json:"deleted_at,omitempty"`
}

// ToEventResponse renders ev. CreatedBy is only filled when the link was
// resolved.
func ToEventResponse(ev *Event) EventResponse {
	resp := EventResponse{
		ID:           ev.ID.Hex(),
		Title:        ev.Title,
		Description:  ev.Description,
		Location:     ev.Location,
		StartTime:    ev.StartTime.UTC(),
		EndTime:      ev.EndTime.UTC(),
		Tags:         ev.Tags,
		MaxAttendees: ev.MaxAttendees,
		Status:       ev.Status,
		DeletedAt:    ev.DeletedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if ev.CreatedBy.Resolved() {
		creator := authsvc.ToUserResponse(ev.CreatedBy.Doc)
		resp.CreatedBy = &creator
	}
	return resp
}

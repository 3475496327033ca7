package registration

import (
	"errors"
	"time"

	"github.com/bellcorp/eventboard/internal/domain/event"
	"github.com/google/uuid"
)

type Registration struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	EventID   string    `json:"eventId"`
	CreatedAt time.Time `json:"createdAt"`
}

// if you are already registered for this event.
var ErrAlreadyRegistered = errors.New("already registered")

// error if event is full
var ErrEventFull = errors.New("event is full")

// error if the event start time is in the past
var ErrEventEnded = errors.New("event already ended")

var ErrNotFound = errors.New("registration not found")

// only the event owner may list an event's registrations
var ErrNotOwner = errors.New("caller does not own this event")

// WithEvent is the "my registrations" read shape: each row carries its event.
type WithEvent struct {
	Registration
	Event event.Event `json:"event"`
}

// Attendee is the public slice of a user exposed to event owners.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// WithAttendee is the owner-facing read shape for an event's registrations.
type WithAttendee struct {
	Registration
	User Attendee `json:"user"`
}

func New(userID, eventID string) Registration {
	return Registration{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: time.Now().UTC(),
	}
}

package event

import (
	"time"

	"github.com/google/uuid"
)

// A factory to build an Event from the incoming DTO.

func NewFromCreateRequest(req CreateEventRequest, createdBy string) Event {
	now := time.Now().UTC()

	return Event{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Organizer:       req.Organizer,
		Location:        req.Location,
		DateTime:        req.DateTime,
		Description:     req.Description,
		Capacity:        req.Capacity,
		RegisteredCount: 0,
		Category:        req.Category,
		CreatedBy:       createdBy,
		RegisteredUsers: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

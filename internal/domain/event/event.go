package event

import (
	"errors"
	"time"
)

type Event struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Organizer       string    `json:"organizer"`
	Location        string    `json:"location"`
	DateTime        time.Time `json:"dateTime"`
	Description     string    `json:"description"`
	Capacity        int       `json:"capacity"`
	RegisteredCount int       `json:"registeredCount"`
	Category        string    `json:"category"`
	CreatedBy       string    `json:"createdBy"`
	RegisteredUsers []string  `json:"registeredUsers"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

var (
	ErrNotFound = errors.New("event not found")

	// ErrCapacityBelowRegistered rejects updates that would shrink capacity
	// under the number of people already registered.
	ErrCapacityBelowRegistered = errors.New("capacity below registered count")
)

// with pointers if optional, it will be nil
type ListEventsFilter struct {
	Search   *string
	Category *string
	Location *string
	Date     *time.Time
	Page     int
	PageSize int
}

// Offset for page-based pagination (page starts at 1).
func (f ListEventsFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,min=1,max=120"`
	Organizer   string    `json:"organizer" binding:"required,min=1,max=120"`
	Location    string    `json:"location" binding:"required,min=1,max=120"`
	DateTime    time.Time `json:"dateTime" binding:"required"`
	Description string    `json:"description" binding:"required,max=2000"`
	Capacity    int       `json:"capacity" binding:"required,min=1,max=50000"`
	Category    string    `json:"category" binding:"required,min=1,max=80"`
}

// UpdateEventRequest is a partial patch. A zero-valued field means "keep the
// stored value", so clients cannot blank a field through this payload; that is
// the behavior existing callers depend on.
type UpdateEventRequest struct {
	Name        string    `json:"name" binding:"omitempty,max=120"`
	Organizer   string    `json:"organizer" binding:"omitempty,max=120"`
	Location    string    `json:"location" binding:"omitempty,max=120"`
	DateTime    time.Time `json:"dateTime" binding:"omitempty"`
	Description string    `json:"description" binding:"omitempty,max=2000"`
	Capacity    int       `json:"capacity" binding:"omitempty,min=1,max=50000"`
	Category    string    `json:"category" binding:"omitempty,max=80"`
}

// ApplyUpdate merges a patch into the event in place.
func (e *Event) ApplyUpdate(req UpdateEventRequest) {
	if req.Name != "" {
		e.Name = req.Name
	}

	if req.Organizer != "" {
		e.Organizer = req.Organizer
	}

	if req.Location != "" {
		e.Location = req.Location
	}

	if !req.DateTime.IsZero() {
		e.DateTime = req.DateTime
	}

	if req.Description != "" {
		e.Description = req.Description
	}

	if req.Capacity != 0 {
		e.Capacity = req.Capacity
	}

	if req.Category != "" {
		e.Category = req.Category
	}

	e.UpdatedAt = time.Now().UTC()
}

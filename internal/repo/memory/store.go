// Package memory is an in-process store with the same surface as the postgres
// repos. Handler and invariant tests run against it; a single mutex plays the
// role the database transaction plays in production, so every multi-entity
// mutation is atomic with respect to concurrent callers.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bellcorp/eventboard/internal/domain/event"
	"github.com/bellcorp/eventboard/internal/domain/registration"
	"github.com/bellcorp/eventboard/internal/domain/user"
)

type Store struct {
	mu            sync.Mutex
	events        map[string]event.Event
	registrations map[string]registration.Registration // keyed by userID+"/"+eventID
	users         map[string]user.User
}

func NewStore() *Store {
	return &Store{
		events:        make(map[string]event.Event),
		registrations: make(map[string]registration.Registration),
		users:         make(map[string]user.User),
	}
}

func regKey(userID, eventID string) string {
	return userID + "/" + eventID
}

// AddUser seeds a user directly, bypassing signup.
func (s *Store) AddUser(u user.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

// --- events ---

func (s *Store) Create(ctx context.Context, req event.CreateEventRequest, createdBy string) (event.Event, error) {
	e := event.NewFromCreateRequest(req, createdBy)

	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()

	return e, nil
}

func (s *Store) List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, int, error) {
	s.mu.Lock()
	all := make([]event.Event, 0, len(s.events))
	for _, e := range s.events {
		if matches(e, f) {
			all = append(all, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].DateTime.Equal(all[j].DateTime) {
			return all[i].DateTime.Before(all[j].DateTime)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)

	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}

	return all[start:end], total, nil
}

func matches(e event.Event, f event.ListEventsFilter) bool {
	if f.Search != nil && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(*f.Search)) {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.Location != nil && e.Location != *f.Location {
		return false
	}
	if f.Date != nil {
		dayStart := *f.Date
		dayEnd := dayStart.Add(24 * time.Hour)
		if e.DateTime.Before(dayStart) || !e.DateTime.Before(dayEnd) {
			return false
		}
	}
	return true
}

func (s *Store) GetByID(ctx context.Context, id string) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, req event.UpdateEventRequest) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}

	e.ApplyUpdate(req)

	if e.Capacity < e.RegisteredCount {
		return event.Event{}, event.ErrCapacityBelowRegistered
	}

	s.events[id] = e

	return e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return event.ErrNotFound
	}
	delete(s.events, id)

	return nil
}

// --- registrations ledger ---

func (s *Store) Register(ctx context.Context, eventID, userID string) (registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return registration.Registration{}, event.ErrNotFound
	}

	if e.DateTime.Before(time.Now()) {
		return registration.Registration{}, registration.ErrEventEnded
	}

	if _, dup := s.registrations[regKey(userID, eventID)]; dup {
		return registration.Registration{}, registration.ErrAlreadyRegistered
	}

	// the capacity guard: check and reserve under the same lock
	if e.RegisteredCount >= e.Capacity {
		return registration.Registration{}, registration.ErrEventFull
	}

	e.RegisteredCount++
	e.RegisteredUsers = append(e.RegisteredUsers, userID)
	s.events[eventID] = e

	reg := registration.New(userID, eventID)
	s.registrations[regKey(userID, eventID)] = reg

	if u, ok := s.users[userID]; ok {
		if !contains(u.RegisteredEvents, eventID) {
			u.RegisteredEvents = append(u.RegisteredEvents, eventID)
			s.users[userID] = u
		}
	}

	return reg, nil
}

func (s *Store) Cancel(ctx context.Context, eventID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registrations[regKey(userID, eventID)]; !ok {
		return registration.ErrNotFound
	}

	delete(s.registrations, regKey(userID, eventID))

	if e, ok := s.events[eventID]; ok && e.RegisteredCount > 0 {
		e.RegisteredCount--
		e.RegisteredUsers = remove(e.RegisteredUsers, userID)
		s.events[eventID] = e
	}

	if u, ok := s.users[userID]; ok {
		u.RegisteredEvents = remove(u.RegisteredEvents, eventID)
		s.users[userID] = u
	}

	return nil
}

func (s *Store) ListMine(ctx context.Context, userID string) ([]registration.WithEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]registration.WithEvent, 0)

	for _, r := range s.registrations {
		if r.UserID != userID {
			continue
		}
		out = append(out, registration.WithEvent{
			Registration: r,
			Event:        s.events[r.EventID],
		})
	}

	sortNewestFirst(out, func(w registration.WithEvent) (time.Time, string) {
		return w.CreatedAt, w.ID
	})

	return out, nil
}

func (s *Store) ListForEvent(ctx context.Context, eventID, callerID string) ([]registration.WithAttendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, event.ErrNotFound
	}

	if e.CreatedBy != callerID {
		return nil, registration.ErrNotOwner
	}

	out := make([]registration.WithAttendee, 0)

	for _, r := range s.registrations {
		if r.EventID != eventID {
			continue
		}
		u := s.users[r.UserID]
		out = append(out, registration.WithAttendee{
			Registration: r,
			User:         registration.Attendee{Name: u.Name, Email: u.Email},
		})
	}

	sortNewestFirst(out, func(w registration.WithAttendee) (time.Time, string) {
		return w.CreatedAt, w.ID
	})

	return out, nil
}

// --- inspection helpers for tests ---

// RegistrationCount counts ledger rows for one event.
func (s *Store) RegistrationCount(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.registrations {
		if r.EventID == eventID {
			n++
		}
	}
	return n
}

// UserEvents returns a copy of a user's reverse list.
func (s *Store) UserEvents(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[userID]
	out := make([]string, len(u.RegisteredEvents))
	copy(out, u.RegisteredEvents)
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func remove(xs []string, x string) []string {
	// fresh allocation so slices handed out earlier keep their contents
	out := make([]string, 0, len(xs))
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}

package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bellcorp/eventboard/internal/cache"
	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/domain/event"
	"github.com/bellcorp/eventboard/internal/http/middlewares"
	"github.com/bellcorp/eventboard/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultPage     = 1
	defaultPageSize = 6
)

type EventsRepository interface {
	Create(ctx context.Context, req event.CreateEventRequest, createdBy string) (event.Event, error)
	List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, int, error)
	GetByID(ctx context.Context, id string) (event.Event, error)
	Update(ctx context.Context, id string, req event.UpdateEventRequest) (event.Event, error)
	Delete(ctx context.Context, id string) error
}

type EventsHandler struct {
	repo  EventsRepository
	cache *cache.Cache
}

func NewEventsHandler(repo EventsRepository) *EventsHandler {
	return &EventsHandler{repo: repo}
}

func NewEventsHandlerWithCache(repo EventsRepository, c *cache.Cache) *EventsHandler {
	return &EventsHandler{repo: repo, cache: c}
}

type listEventsResponse struct {
	Events      []event.Event `json:"events"`
	CurrentPage int           `json:"currentPage"`
	TotalPages  int           `json:"totalPages"`
	TotalEvents int           `json:"totalEvents"`
}

// parseListFilter maps query params onto the filter. Non-numeric page/limit
// fall back to the defaults rather than erroring.
func parseListFilter(ctx *gin.Context) event.ListEventsFilter {
	f := event.ListEventsFilter{
		Page:     defaultPage,
		PageSize: defaultPageSize,
	}

	if v, err := strconv.Atoi(ctx.Query("page")); err == nil && v >= 1 {
		f.Page = v
	}

	if v, err := strconv.Atoi(ctx.Query("limit")); err == nil && v >= 1 {
		f.PageSize = v
	}

	if s := ctx.Query("search"); s != "" {
		f.Search = &s
	}

	if c := ctx.Query("category"); c != "" {
		f.Category = &c
	}

	if l := ctx.Query("location"); l != "" {
		f.Location = &l
	}

	// day filter, server-local calendar day
	if d := ctx.Query("date"); d != "" {
		if day, err := time.ParseInLocation("2006-01-02", d, time.Local); err == nil {
			f.Date = &day
		}
	}

	return f
}

func (h *EventsHandler) ListEvents(ctx *gin.Context) {
	f := parseListFilter(ctx)

	key := utils.BuildEventsListCacheKey(f)

	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			if resp, ok := cached.(listEventsResponse); ok {
				RespondJSONWithETag(ctx, http.StatusOK, resp)
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	events, total, err := h.repo.List(cctx, f)

	if err != nil {
		RespondInternal(ctx, "Could not list events")
		return
	}

	resp := listEventsResponse{
		Events:      events,
		CurrentPage: f.Page,
		TotalPages:  int(math.Ceil(float64(total) / float64(f.PageSize))),
		TotalEvents: total,
	}

	if h.cache != nil {
		h.cache.Set(key, resp)
	}

	RespondJSONWithETag(ctx, http.StatusOK, resp)
}

func (h *EventsHandler) GetEventById(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	e, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not fetch event")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, e)
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var req event.CreateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	created, err := h.repo.Create(cctx, req, userID)

	if err != nil {
		RespondInternal(ctx, "Could not create event")
		return
	}

	h.invalidateCache()

	ctx.JSON(http.StatusCreated, created)
}

func (h *EventsHandler) UpdateEvent(ctx *gin.Context) {
	id := ctx.Param("id")

	var req event.UpdateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if !h.requireOwner(ctx, cctx, id) {
		return
	}

	updated, err := h.repo.Update(cctx, id, req)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		if errors.Is(err, event.ErrCapacityBelowRegistered) {
			RespondConflict(ctx, "capacity_below_registered",
				"Capacity cannot be reduced below the current number of registrations")
			return
		}
		RespondInternal(ctx, "Could not update event")
		return
	}

	h.invalidateCache()

	ctx.JSON(http.StatusOK, updated)
}

func (h *EventsHandler) DeleteEvent(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if !h.requireOwner(ctx, cctx, id) {
		return
	}

	err := h.repo.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not delete event")
		return
	}

	h.invalidateCache()

	ctx.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

// requireOwner loads the event and rejects callers who neither own it nor
// hold the admin role. Responds and returns false on failure.
func (h *EventsHandler) requireOwner(ctx *gin.Context, cctx context.Context, id string) bool {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return false
	}

	e, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return false
		}
		RespondInternal(ctx, "Could not fetch event")
		return false
	}

	role, _ := middlewares.RoleFromContext(ctx)

	if role != "admin" && e.CreatedBy != userID {
		RespondForbidden(ctx, "Only the event owner can modify this event")
		return false
	}

	return true
}

func (h *EventsHandler) invalidateCache() {
	if h.cache != nil {
		h.cache.Clear()
	}
}

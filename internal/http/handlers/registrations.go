package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/domain/event"
	"github.com/bellcorp/eventboard/internal/domain/registration"
	"github.com/bellcorp/eventboard/internal/http/middlewares"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/bellcorp/eventboard/internal/queue"
	"github.com/bellcorp/eventboard/internal/utils"
	"github.com/gin-gonic/gin"
)

// RegistrationsLedger is the transactional registration surface. Every
// mutation commits all four bookkeeping representations or none of them.
type RegistrationsLedger interface {
	Register(ctx context.Context, eventID, userID string) (registration.Registration, error)
	Cancel(ctx context.Context, eventID, userID string) error
	ListMine(ctx context.Context, userID string) ([]registration.WithEvent, error)
	ListForEvent(ctx context.Context, eventID, callerID string) ([]registration.WithAttendee, error)
}

// ConfirmationEnqueuer pushes a confirmation for the worker; nil disables it.
type ConfirmationEnqueuer interface {
	Enqueue(ctx context.Context, c queue.Confirmation) error
}

type RegistrationsHandler struct {
	ledger RegistrationsLedger
	events EventsRepository
	queue  ConfirmationEnqueuer
	prom   *observability.Prom
}

func NewRegistrationsHandler(ledger RegistrationsLedger, events EventsRepository, q ConfirmationEnqueuer, prom *observability.Prom) *RegistrationsHandler {
	return &RegistrationsHandler{ledger: ledger, events: events, queue: q, prom: prom}
}

func (h *RegistrationsHandler) countResult(op, result string) {
	if h.prom != nil {
		h.prom.RegistrationResults.WithLabelValues(op, result).Inc()
	}
}

func (h *RegistrationsHandler) Register(ctx *gin.Context) {
	eventID := ctx.Param("eventId")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	reg, err := h.ledger.Register(cctx, eventID, userID)

	if err != nil {
		switch {
		case errors.Is(err, event.ErrNotFound):
			h.countResult("register", "not_found")
			RespondNotFound(ctx, "Event not found")
		case errors.Is(err, registration.ErrEventEnded):
			h.countResult("register", "event_ended")
			RespondConflict(ctx, "event_ended", "Event already ended.")
		case errors.Is(err, registration.ErrAlreadyRegistered):
			h.countResult("register", "already_registered")
			RespondConflict(ctx, "already_registered", "Already registered for this event.")
		case errors.Is(err, registration.ErrEventFull):
			h.countResult("register", "event_full")
			RespondConflict(ctx, "event_full", "Event is full.")
		default:
			h.countResult("register", "error")
			RespondInternal(ctx, "Could not register for event")
		}
		return
	}

	h.countResult("register", "ok")

	h.enqueueConfirmation(ctx, reg)

	ctx.JSON(http.StatusCreated, gin.H{
		"message":      "Registered successfully",
		"registration": reg,
	})
}

// enqueueConfirmation is best effort; the registration already committed and
// a queue hiccup must not fail the request.
func (h *RegistrationsHandler) enqueueConfirmation(ctx *gin.Context, reg registration.Registration) {
	if h.queue == nil {
		return
	}

	cctx, cancel := config.WithTimeout(1 * time.Second)
	defer cancel()

	eventName := ""
	if h.events != nil {
		if e, err := h.events.GetByID(cctx, reg.EventID); err == nil {
			eventName = e.Name
		}
	}

	email, _ := ctx.Get(middlewares.CtxEmail)
	emailStr, _ := email.(string)

	_ = h.queue.Enqueue(cctx, queue.Confirmation{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		EventName:      eventName,
		UserID:         reg.UserID,
		Email:          emailStr,
		RequestedAt:    time.Now().UTC(),
	})
}

func (h *RegistrationsHandler) Cancel(ctx *gin.Context) {
	eventID := ctx.Param("eventId")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.ledger.Cancel(cctx, eventID, userID)

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			h.countResult("cancel", "not_found")
			RespondNotFound(ctx, "Registration not found")
			return
		}

		h.countResult("cancel", "error")
		RespondInternal(ctx, "Could not cancel registration")
		return
	}

	h.countResult("cancel", "ok")

	ctx.JSON(http.StatusOK, gin.H{"message": "Registration cancelled successfully"})
}

func (h *RegistrationsHandler) ListMine(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	regs, err := h.ledger.ListMine(cctx, userID)

	if err != nil {
		RespondInternal(ctx, "Failed to fetch registrations")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"count":         len(regs),
		"registrations": regs,
	})
}

func (h *RegistrationsHandler) ListForEvent(ctx *gin.Context) {
	eventID := ctx.Param("eventId")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	callerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || callerID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	regs, err := h.ledger.ListForEvent(cctx, eventID, callerID)

	if err != nil {
		switch {
		case errors.Is(err, event.ErrNotFound):
			RespondNotFound(ctx, "Event not found")
		case errors.Is(err, registration.ErrNotOwner):
			RespondForbidden(ctx, "Only the event owner can view registrations")
		default:
			RespondInternal(ctx, "Failed to fetch registrations")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"eventId":       eventID,
		"count":         len(regs),
		"registrations": regs,
	})
}

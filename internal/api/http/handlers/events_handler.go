package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// EventsHandler ingests collaborator notifications: ticket mutations from
// the ticket store and policy changes from the configuration service.
type EventsHandler struct {
	dispatcher events.Dispatcher
}

// NewEventsHandler constructs handler.
func NewEventsHandler(dispatcher events.Dispatcher) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher}
}

// IngestTicketMutation POST /events/ticket.
func (h *EventsHandler) IngestTicketMutation(c *fiber.Ctx) error {
	var req dto.TicketMutationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TicketID == "" || req.TenantID == "" {
		return apperrors.NewValidationError("ticket_id and tenant_id required", nil)
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}
	event := events.Event{
		ID:        uuid.NewString(),
		TicketID:  req.TicketID,
		TenantID:  req.TenantID,
		Timestamp: occurredAt,
	}

	switch events.EventType(req.Type) {
	case events.EventTicketCreated:
		if req.Category == "" || req.Priority == "" {
			return apperrors.NewValidationError("category and priority required for ticket_created", nil)
		}
		event.Type = events.EventTicketCreated
		event.Payload = events.TicketCreatedPayload{
			Category:  req.Category,
			Priority:  domain.TicketPriority(req.Priority),
			CreatedAt: occurredAt,
		}
	case events.EventFirstResponseRecorded:
		event.Type = events.EventFirstResponseRecorded
		event.Payload = events.FirstResponsePayload{RespondedAt: occurredAt}
	case events.EventTicketResolved:
		event.Type = events.EventTicketResolved
		event.Payload = events.TicketResolvedPayload{ResolvedAt: occurredAt}
	case events.EventTicketPriorityChanged:
		if req.Priority == "" {
			return apperrors.NewValidationError("priority required for ticket_priority_changed", nil)
		}
		event.Type = events.EventTicketPriorityChanged
		event.Payload = events.PriorityChangedPayload{
			OldPriority: domain.TicketPriority(req.OldPriority),
			NewPriority: domain.TicketPriority(req.Priority),
		}
	case events.EventTicketCategoryChanged:
		if req.Category == "" {
			return apperrors.NewValidationError("category required for ticket_category_changed", nil)
		}
		event.Type = events.EventTicketCategoryChanged
		event.Payload = events.CategoryChangedPayload{
			OldCategory: req.OldCategory,
			NewCategory: req.Category,
		}
	case events.EventPolicyReassigned:
		event.Type = events.EventPolicyReassigned
	default:
		return apperrors.NewValidationError("unknown event type", map[string]any{"type": req.Type})
	}

	if err := h.dispatcher.Publish(c.Context(), event); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"event_id": event.ID}})
}

// IngestPolicyChange POST /events/policy.
func (h *EventsHandler) IngestPolicyChange(c *fiber.Ctx) error {
	var req dto.PolicyChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TenantID == "" {
		return apperrors.NewValidationError("tenant_id required", nil)
	}

	eventType := events.EventType(req.Type)
	if eventType != events.EventPolicyPublished && eventType != events.EventPolicyDeactivated {
		return apperrors.NewValidationError("unknown event type", map[string]any{"type": req.Type})
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  req.TenantID,
		Timestamp: time.Now(),
		Payload:   events.PolicyChangePayload{PolicyID: req.PolicyID},
	}
	if err := h.dispatcher.Publish(c.Context(), event); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"event_id": event.ID}})
}

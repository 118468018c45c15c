package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// SLAHandler serves the read-only SLA query surface. It only filters on the
// persisted sla_status column and never recomputes status inline, so the
// classifier stays the single source of truth.
type SLAHandler struct {
	tickets    repository.TicketSLARepository
	escalation repository.EscalationEventRepository
}

// NewSLAHandler constructs handler.
func NewSLAHandler(tickets repository.TicketSLARepository, escalation repository.EscalationEventRepository) *SLAHandler {
	return &SLAHandler{tickets: tickets, escalation: escalation}
}

// GetAtRisk GET /sla/:tenantID/at-risk.
func (h *SLAHandler) GetAtRisk(c *fiber.Ctx) error {
	return h.listByStatus(c, domain.SLAStatusAtRisk)
}

// GetBreached GET /sla/:tenantID/breached.
func (h *SLAHandler) GetBreached(c *fiber.Ctx) error {
	return h.listByStatus(c, domain.SLAStatusBreached)
}

// GetTicket GET /sla/ticket/:id.
func (h *SLAHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.FromTicketSLA(ticket)})
}

// ListEscalations GET /sla/ticket/:id/escalations.
func (h *SLAHandler) ListEscalations(c *fiber.Ctx) error {
	eventList, err := h.escalation.ListByTicket(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.EscalationEventResponse, 0, len(eventList))
	for i := range eventList {
		items = append(items, dto.FromEscalationEvent(&eventList[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *SLAHandler) listByStatus(c *fiber.Ctx, status domain.SLAStatus) error {
	tenantID := c.Params("tenantID")
	if tenantID == "" {
		return apperrors.NewValidationError("tenant id required", nil)
	}
	limit, offset := parsePage(c)
	tickets, err := h.tickets.ListByStatus(c.Context(), tenantID, status, limit, offset)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.TicketSLAResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicketSLA(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parsePage(c *fiber.Ctx) (int, int) {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventFirstResponseRecorded EventType = "first_response_recorded"
	EventTicketResolved        EventType = "ticket_resolved"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketCategoryChanged EventType = "ticket_category_changed"
	EventPolicyReassigned      EventType = "policy_reassigned"
	EventPolicyPublished       EventType = "policy_published"
	EventPolicyDeactivated     EventType = "policy_deactivated"
)

// Event represents a collaborator notification consumed by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	TenantID  string      `json:"tenant_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category  string                `json:"category"`
	Priority  domain.TicketPriority `json:"priority"`
	CreatedAt time.Time             `json:"created_at"`
}

// FirstResponsePayload payload.
type FirstResponsePayload struct {
	RespondedAt time.Time `json:"responded_at"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	ResolvedAt time.Time `json:"resolved_at"`
}

// PriorityChangedPayload payload.
type PriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// CategoryChangedPayload payload.
type CategoryChangedPayload struct {
	OldCategory string `json:"old_category"`
	NewCategory string `json:"new_category"`
}

// PolicyChangePayload payload for publish/deactivate notifications.
type PolicyChangePayload struct {
	PolicyID string `json:"policy_id"`
}

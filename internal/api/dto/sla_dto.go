package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketSLAResponse is the persisted SLA projection of one ticket.
type TicketSLAResponse struct {
	ID                    string     `json:"id"`
	TenantID              string     `json:"tenant_id"`
	Category              string     `json:"category"`
	Priority              string     `json:"priority"`
	CreatedAt             time.Time  `json:"created_at"`
	FirstRespondedAt      *time.Time `json:"first_responded_at,omitempty"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
	CurrentPolicyID       *string    `json:"current_policy_id,omitempty"`
	FirstResponseDeadline *time.Time `json:"first_response_deadline,omitempty"`
	ResolutionDeadline    *time.Time `json:"resolution_deadline,omitempty"`
	SLAStatus             string     `json:"sla_status"`
	EscalationLevel       int        `json:"escalation_level"`
}

// EscalationEventResponse is one fired escalation record.
type EscalationEventResponse struct {
	ID          string                  `json:"id"`
	TicketID    string                  `json:"ticket_id"`
	PolicyID    string                  `json:"policy_id"`
	Level       int                     `json:"level"`
	TriggerKind string                  `json:"trigger_kind"`
	FiredAt     time.Time               `json:"fired_at"`
	Actions     []ActionOutcomeResponse `json:"actions_dispatched"`
}

// ActionOutcomeResponse is the result of one dispatched action.
type ActionOutcomeResponse struct {
	Kind     string `json:"kind"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// TicketMutationRequest is the ingest payload posted by the ticket store.
type TicketMutationRequest struct {
	Type        string     `json:"type"`
	TicketID    string     `json:"ticket_id"`
	TenantID    string     `json:"tenant_id"`
	Category    string     `json:"category,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	OldPriority string     `json:"old_priority,omitempty"`
	OldCategory string     `json:"old_category,omitempty"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
}

// PolicyChangeRequest is the ingest payload for policy publish/deactivate
// notifications.
type PolicyChangeRequest struct {
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
	PolicyID string `json:"policy_id"`
}

// FromTicketSLA maps the domain projection.
func FromTicketSLA(t *domain.TicketSLA) TicketSLAResponse {
	return TicketSLAResponse{
		ID:                    t.ID,
		TenantID:              t.TenantID,
		Category:              t.Category,
		Priority:              string(t.Priority),
		CreatedAt:             t.CreatedAt,
		FirstRespondedAt:      t.FirstRespondedAt,
		ResolvedAt:            t.ResolvedAt,
		CurrentPolicyID:       t.CurrentPolicyID,
		FirstResponseDeadline: t.FirstResponseDeadline,
		ResolutionDeadline:    t.ResolutionDeadline,
		SLAStatus:             string(t.SLAStatus),
		EscalationLevel:       t.EscalationLevel,
	}
}

// FromEscalationEvent maps the domain event.
func FromEscalationEvent(e *domain.EscalationEvent) EscalationEventResponse {
	actions := make([]ActionOutcomeResponse, 0, len(e.ActionsDispatched))
	for _, outcome := range e.ActionsDispatched {
		actions = append(actions, ActionOutcomeResponse{
			Kind:     string(outcome.Kind),
			Success:  outcome.Success,
			Attempts: outcome.Attempts,
			Error:    outcome.Error,
		})
	}
	return EscalationEventResponse{
		ID:          e.ID,
		TicketID:    e.TicketID,
		PolicyID:    e.PolicyID,
		Level:       e.Level,
		TriggerKind: string(e.TriggerKind),
		FiredAt:     e.FiredAt,
		Actions:     actions,
	}
}

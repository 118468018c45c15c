package domain

import "time"

// SLAStatus enumerates compliance states for tracked tickets.
type SLAStatus string

const (
	SLAStatusNotTracked SLAStatus = "not_tracked"
	SLAStatusOnTrack    SLAStatus = "on_track"
	SLAStatusAtRisk     SLAStatus = "at_risk"
	SLAStatusBreached   SLAStatus = "breached"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketSLA is the SLA-relevant projection of a ticket. The ticket store owns
// the full aggregate; the engine reads and writes only these columns.
type TicketSLA struct {
	ID                    string
	TenantID              string
	Category              string
	Priority              TicketPriority
	CreatedAt             time.Time
	FirstRespondedAt      *time.Time
	ResolvedAt            *time.Time
	CurrentPolicyID       *string
	FirstResponseDeadline *time.Time
	ResolutionDeadline    *time.Time
	SLAStatus             SLAStatus
	EscalationLevel       int
	Version               int64
}

// Tracked reports whether the ticket is under active SLA tracking. A bound
// policy is the authoritative signal; sla_status is derived and may lag.
func (t *TicketSLA) Tracked() bool {
	return t.CurrentPolicyID != nil
}

// Open reports whether tracking may still advance. Resolution freezes status
// and level permanently.
func (t *TicketSLA) Open() bool {
	return t.ResolvedAt == nil
}

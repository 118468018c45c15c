package domain

import "time"

// TriggerKind distinguishes which SLA commitment an escalation concerns.
type TriggerKind string

const (
	TriggerFirstResponse TriggerKind = "first_response"
	TriggerResolution    TriggerKind = "resolution"
)

// BreachedLevel marks the terminal escalation step beyond the last configured
// level. It sorts above any policy-defined level.
const BreachedLevel = 1 << 20

// EscalationEvent is an append-only record of a fired escalation level. At
// most one event exists per (ticket, level, trigger kind); the storage layer
// enforces this with a unique index.
type EscalationEvent struct {
	ID                string
	TicketID          string
	TenantID          string
	PolicyID          string
	Level             int
	TriggerKind       TriggerKind
	FiredAt           time.Time
	ActionsDispatched []ActionOutcome
}

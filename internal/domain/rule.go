package domain

import "time"

// RuleTrigger enumerates the events an automation rule can react to.
type RuleTrigger string

const (
	RuleTriggerTicketCreated    RuleTrigger = "ticket_created"
	RuleTriggerSLAStatusChanged RuleTrigger = "sla_status_changed"
	RuleTriggerSLAEscalated     RuleTrigger = "sla_escalated"
	RuleTriggerSLABreached      RuleTrigger = "sla_breached"
)

// ConditionOperator enumerates supported predicate comparisons.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "eq"
	OpNotEquals   ConditionOperator = "neq"
	OpInSet       ConditionOperator = "in"
	OpGreaterThan ConditionOperator = "gt"
	OpLessThan    ConditionOperator = "lt"
	OpAtLeast     ConditionOperator = "gte"
	OpAtMost      ConditionOperator = "lte"
)

// RuleCondition is one conjunctive predicate over a ticket snapshot field.
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value,omitempty"`
	Values   []string          `json:"values,omitempty"`
}

// AutomationRule matches firing events against conditions and contributes
// its actions when all conditions hold.
type AutomationRule struct {
	ID         string
	TenantID   string
	Trigger    RuleTrigger
	Priority   int
	Conditions []RuleCondition
	Actions    []ActionSpec
	Active     bool
	CreatedAt  time.Time
}

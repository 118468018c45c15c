package domain

// ActionKind tags the ActionSpec variant.
type ActionKind string

const (
	ActionKindNotify         ActionKind = "notify"
	ActionKindReassign       ActionKind = "reassign"
	ActionKindChangeStatus   ActionKind = "change_status"
	ActionKindChangePriority ActionKind = "change_priority"
	ActionKindEscalate       ActionKind = "escalate"
	ActionKindComment        ActionKind = "comment"
)

// ActionSpec is a tagged variant describing one automation action. Exactly one
// of the payload pointers is non-nil, selected by Kind, so the dispatcher can
// switch exhaustively over a closed action set.
type ActionSpec struct {
	Kind           ActionKind            `json:"kind"`
	Notify         *NotifyAction         `json:"notify,omitempty"`
	Reassign       *ReassignAction       `json:"reassign,omitempty"`
	ChangeStatus   *ChangeStatusAction   `json:"change_status,omitempty"`
	ChangePriority *ChangePriorityAction `json:"change_priority,omitempty"`
	Escalate       *EscalateAction       `json:"escalate,omitempty"`
	Comment        *CommentAction        `json:"comment,omitempty"`
}

// NotifyAction sends a templated notification over a channel.
type NotifyAction struct {
	Channel        string `json:"channel"`
	TemplateID     string `json:"template_id"`
	RecipientsRule string `json:"recipients_rule"`
}

// ReassignAction moves the ticket per the named strategy.
type ReassignAction struct {
	Strategy string `json:"strategy"`
}

// ChangeStatusAction sets the ticket status.
type ChangeStatusAction struct {
	ToStatus string `json:"to_status"`
}

// ChangePriorityAction sets the ticket priority.
type ChangePriorityAction struct {
	ToPriority TicketPriority `json:"to_priority"`
}

// EscalateAction forces the ticket to a specific escalation level.
type EscalateAction struct {
	ToLevel int `json:"to_level"`
}

// CommentAction posts a templated comment on the ticket.
type CommentAction struct {
	TemplateID string `json:"template_id"`
	Internal   bool   `json:"internal"`
}

// ActionOutcome records the result of dispatching a single action.
type ActionOutcome struct {
	Kind     ActionKind `json:"kind"`
	Success  bool       `json:"success"`
	Attempts int        `json:"attempts"`
	Error    string     `json:"error,omitempty"`
}

package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// LoggingCollaborator is the default ticket-store and notification boundary:
// it records every call in the log and succeeds. Deployments wire real
// collaborator clients in its place.
type LoggingCollaborator struct {
	logger *zap.Logger
}

// NewLoggingCollaborator constructs the stub boundary.
func NewLoggingCollaborator(logger *zap.Logger) *LoggingCollaborator {
	return &LoggingCollaborator{logger: logger}
}

func (c *LoggingCollaborator) Reassign(ctx context.Context, ticketID, strategy string) error {
	c.logger.Info("reassign ticket", zap.String("ticket_id", ticketID), zap.String("strategy", strategy))
	return nil
}

func (c *LoggingCollaborator) ChangeStatus(ctx context.Context, ticketID, toStatus string) error {
	c.logger.Info("change ticket status", zap.String("ticket_id", ticketID), zap.String("to_status", toStatus))
	return nil
}

func (c *LoggingCollaborator) ChangePriority(ctx context.Context, ticketID string, to domain.TicketPriority) error {
	c.logger.Info("change ticket priority", zap.String("ticket_id", ticketID), zap.String("to_priority", string(to)))
	return nil
}

func (c *LoggingCollaborator) Escalate(ctx context.Context, ticketID string, toLevel int) error {
	c.logger.Info("escalate ticket", zap.String("ticket_id", ticketID), zap.Int("to_level", toLevel))
	return nil
}

func (c *LoggingCollaborator) AddComment(ctx context.Context, ticketID, templateID string, internal bool) error {
	c.logger.Info("comment on ticket",
		zap.String("ticket_id", ticketID),
		zap.String("template_id", templateID),
		zap.Bool("internal", internal))
	return nil
}

func (c *LoggingCollaborator) Send(ctx context.Context, ticketID string, action domain.NotifyAction) error {
	c.logger.Info("send notification",
		zap.String("ticket_id", ticketID),
		zap.String("channel", action.Channel),
		zap.String("template_id", action.TemplateID),
		zap.String("recipients_rule", action.RecipientsRule))
	return nil
}

package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketMutator is the boundary to the ticket store for side-effecting
// actions. Each call carries its own timeout; failures are isolated per
// action.
type TicketMutator interface {
	Reassign(ctx context.Context, ticketID, strategy string) error
	ChangeStatus(ctx context.Context, ticketID, toStatus string) error
	ChangePriority(ctx context.Context, ticketID string, to domain.TicketPriority) error
	Escalate(ctx context.Context, ticketID string, toLevel int) error
	AddComment(ctx context.Context, ticketID, templateID string, internal bool) error
}

// NotificationSender is the boundary to the notification transport. The
// engine decides that and what to send; delivery is the collaborator's job.
type NotificationSender interface {
	Send(ctx context.Context, ticketID string, action domain.NotifyAction) error
}

// Dispatcher executes resolved actions with bounded retries and exponential
// backoff. A failed action is recorded, never rolled back: the escalation
// having fired is a fact about SLA state independent of side effects.
type Dispatcher struct {
	mutator  TicketMutator
	notifier NotificationSender
	cfg      config.DispatchConfig
	logger   *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(mutator TicketMutator, notifier NotificationSender, cfg config.DispatchConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{mutator: mutator, notifier: notifier, cfg: cfg, logger: logger}
}

// Dispatch executes each action independently and returns per-action
// outcomes. No transactionality is assumed across actions.
func (d *Dispatcher) Dispatch(ctx context.Context, ticketID string, actions []domain.ActionSpec) []domain.ActionOutcome {
	outcomes := make([]domain.ActionOutcome, 0, len(actions))
	for _, action := range actions {
		outcomes = append(outcomes, d.dispatchOne(ctx, ticketID, action))
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ticketID string, action domain.ActionSpec) domain.ActionOutcome {
	outcome := domain.ActionOutcome{Kind: action.Kind}
	maxAttempts := d.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt
		lastErr = d.execute(ctx, ticketID, action)
		if lastErr == nil {
			outcome.Success = true
			return outcome
		}
		d.logger.Warn("action dispatch attempt failed",
			zap.String("ticket_id", ticketID),
			zap.String("action", string(action.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < maxAttempts && !sleepBackoff(ctx, d.cfg.BackoffBase(), attempt) {
			break
		}
	}

	outcome.Error = lastErr.Error()
	d.logger.Error("action dispatch exhausted retries",
		zap.String("ticket_id", ticketID),
		zap.String("action", string(action.Kind)),
		zap.Int("attempts", outcome.Attempts),
		zap.Error(lastErr))
	return outcome
}

func (d *Dispatcher) execute(ctx context.Context, ticketID string, action domain.ActionSpec) error {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout())
	defer cancel()

	switch action.Kind {
	case domain.ActionKindNotify:
		if action.Notify == nil {
			return errMalformedAction
		}
		return d.notifier.Send(callCtx, ticketID, *action.Notify)
	case domain.ActionKindReassign:
		if action.Reassign == nil {
			return errMalformedAction
		}
		return d.mutator.Reassign(callCtx, ticketID, action.Reassign.Strategy)
	case domain.ActionKindChangeStatus:
		if action.ChangeStatus == nil {
			return errMalformedAction
		}
		return d.mutator.ChangeStatus(callCtx, ticketID, action.ChangeStatus.ToStatus)
	case domain.ActionKindChangePriority:
		if action.ChangePriority == nil {
			return errMalformedAction
		}
		return d.mutator.ChangePriority(callCtx, ticketID, action.ChangePriority.ToPriority)
	case domain.ActionKindEscalate:
		if action.Escalate == nil {
			return errMalformedAction
		}
		return d.mutator.Escalate(callCtx, ticketID, action.Escalate.ToLevel)
	case domain.ActionKindComment:
		if action.Comment == nil {
			return errMalformedAction
		}
		return d.mutator.AddComment(callCtx, ticketID, action.Comment.TemplateID, action.Comment.Internal)
	default:
		d.logger.Warn("unknown action kind skipped", zap.String("action", string(action.Kind)))
		return nil
	}
}

var errMalformedAction = errors.New("action payload missing for kind")

// sleepBackoff waits base << (attempt-1), honoring cancellation. Returns
// false when the context ended first.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) bool {
	delay := base << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

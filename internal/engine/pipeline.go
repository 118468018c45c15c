package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/policy"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/rules"
	"github.com/spec-kit/sla-engine/internal/sla"
)

// Pipeline owns every write into the SLA projection. Ticket mutation events
// and sweep ticks both converge here, so status and level have exactly one
// source of truth.
type Pipeline struct {
	tickets    repository.TicketSLARepository
	policies   repository.PolicyRepository
	escalation repository.EscalationEventRepository
	rules      repository.RuleRepository
	resolver   *policy.Resolver
	calendar   *calendar.Engine
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// PipelineDependencies bundles collaborators for the pipeline.
type PipelineDependencies struct {
	TicketRepo     repository.TicketSLARepository
	PolicyRepo     repository.PolicyRepository
	EscalationRepo repository.EscalationEventRepository
	RuleRepo       repository.RuleRepository
	Resolver       *policy.Resolver
	Calendar       *calendar.Engine
	Dispatcher     *Dispatcher
	Logger         *zap.Logger
}

// NewPipeline constructs the pipeline.
func NewPipeline(deps PipelineDependencies) *Pipeline {
	return &Pipeline{
		tickets:    deps.TicketRepo,
		policies:   deps.PolicyRepo,
		escalation: deps.EscalationRepo,
		rules:      deps.RuleRepo,
		resolver:   deps.Resolver,
		calendar:   deps.Calendar,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Track resolves a policy for the ticket and starts (or restarts) its
// tracking lifecycle: deadlines recomputed from createdAt, escalation level
// reset. Called at ticket creation and at re-policy, never from the sweep.
func (p *Pipeline) Track(ctx context.Context, ticketID string, now time.Time) error {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}

	matched, err := p.resolver.Resolve(ctx, ticket.TenantID, ticket.Category, ticket.Priority)
	if err != nil {
		return err
	}
	if matched == nil {
		// No applicable policy is a valid terminal classification, not an error.
		ticket.CurrentPolicyID = nil
		ticket.FirstResponseDeadline = nil
		ticket.ResolutionDeadline = nil
		ticket.SLAStatus = domain.SLAStatusNotTracked
		ticket.EscalationLevel = 0
		_, err := p.persist(ctx, ticket)
		return err
	}

	deadlines, err := sla.ComputeDeadlines(ctx, p.calendar, ticket, matched)
	if err != nil {
		// Calendar misconfiguration must fail loudly and leave the ticket
		// untracked; silently falling back to wall-clock would misrepresent
		// the commitment.
		if errors.Is(err, calendar.ErrNoWorkingWindows) {
			p.logger.Error("calendar misconfigured; ticket left untracked",
				zap.String("ticket_id", ticket.ID),
				zap.String("policy_id", matched.ID),
				zap.Error(err))
			ticket.CurrentPolicyID = nil
			ticket.FirstResponseDeadline = nil
			ticket.ResolutionDeadline = nil
			ticket.SLAStatus = domain.SLAStatusNotTracked
			ticket.EscalationLevel = 0
			_, werr := p.persist(ctx, ticket)
			return werr
		}
		return err
	}

	ticket.CurrentPolicyID = &matched.ID
	ticket.FirstResponseDeadline = &deadlines.FirstResponse
	ticket.ResolutionDeadline = &deadlines.Resolution
	ticket.EscalationLevel = 0

	cls := sla.Classify(ticket, matched, now)
	ticket.SLAStatus = cls.Status
	won, err := p.persist(ctx, ticket)
	if err != nil || !won {
		return err
	}

	p.evaluateAndDispatch(ctx, ticket, domain.RuleTriggerTicketCreated, now, nil)
	return nil
}

// Run re-evaluates one tracked ticket: classify, advance the escalation
// state machine, evaluate automation rules, dispatch actions. Safe to call
// concurrently for the same ticket; the version guard and the escalation
// event uniqueness constraint arbitrate races.
func (p *Pipeline) Run(ctx context.Context, ticketID string, now time.Time) error {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if !ticket.Tracked() {
		return nil
	}

	pol, err := p.policies.GetByID(ctx, *ticket.CurrentPolicyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			p.logger.Warn("tracked ticket references missing policy",
				zap.String("ticket_id", ticket.ID),
				zap.String("policy_id", *ticket.CurrentPolicyID))
			return nil
		}
		return fmt.Errorf("load policy for ticket %s: %w", ticket.ID, err)
	}

	cls := sla.Classify(ticket, pol, now)
	transition := sla.NextTransition(pol, ticket, cls, now)
	statusChanged := cls.Status != ticket.SLAStatus

	if !statusChanged && transition == nil {
		return nil
	}

	ticket.SLAStatus = cls.Status
	if transition != nil {
		ticket.EscalationLevel = transition.Level
	}
	won, err := p.persist(ctx, ticket)
	if err != nil || !won {
		return err
	}

	if transition != nil {
		p.fireEscalation(ctx, ticket, pol, cls, transition, now)
		return nil
	}
	p.evaluateAndDispatch(ctx, ticket, domain.RuleTriggerSLAStatusChanged, now, nil)
	return nil
}

// RePolicy forces a fresh policy resolution, starting a new tracking
// lifecycle for the ticket.
func (p *Pipeline) RePolicy(ctx context.Context, ticketID string, now time.Time) error {
	return p.Track(ctx, ticketID, now)
}

// Reclassify re-resolves the policy after a category/priority change. A
// different match starts a new lifecycle; the same match only re-runs
// classification.
func (p *Pipeline) Reclassify(ctx context.Context, ticketID string, now time.Time) error {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	matched, err := p.resolver.Resolve(ctx, ticket.TenantID, ticket.Category, ticket.Priority)
	if err != nil {
		return err
	}
	if samePolicy(ticket.CurrentPolicyID, matched) {
		return p.Run(ctx, ticketID, now)
	}
	return p.Track(ctx, ticketID, now)
}

// fireEscalation records the escalation event and dispatches its actions.
// A duplicate insert means another pipeline run already fired this level;
// this run then skips dispatching rather than acting twice.
func (p *Pipeline) fireEscalation(ctx context.Context, ticket *domain.TicketSLA, pol *domain.SLAPolicy, cls sla.Classification, transition *sla.Transition, now time.Time) {
	event := &domain.EscalationEvent{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		TenantID:    ticket.TenantID,
		PolicyID:    pol.ID,
		Level:       transition.Level,
		TriggerKind: transition.TriggerKind,
		FiredAt:     now,
	}
	if err := p.escalation.Insert(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			p.logger.Debug("escalation level already fired",
				zap.String("ticket_id", ticket.ID),
				zap.Int("level", transition.Level),
				zap.String("trigger_kind", string(transition.TriggerKind)))
			return
		}
		p.logger.Error("record escalation event",
			zap.String("ticket_id", ticket.ID),
			zap.Int("level", transition.Level),
			zap.Error(err))
		return
	}

	trigger := domain.RuleTriggerSLAEscalated
	if cls.Status == domain.SLAStatusBreached {
		trigger = domain.RuleTriggerSLABreached
	}
	outcomes := p.evaluateAndDispatch(ctx, ticket, trigger, now, transition.Actions)
	if len(outcomes) == 0 {
		return
	}
	if err := p.escalation.UpdateOutcomes(ctx, event.ID, outcomes); err != nil {
		p.logger.Warn("record action outcomes",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// evaluateAndDispatch concatenates the level's own actions with matching
// automation-rule actions and hands them to the dispatcher.
func (p *Pipeline) evaluateAndDispatch(ctx context.Context, ticket *domain.TicketSLA, trigger domain.RuleTrigger, now time.Time, levelActions []domain.ActionSpec) []domain.ActionOutcome {
	ruleSet, err := p.rules.ListActive(ctx, ticket.TenantID, trigger)
	if err != nil {
		p.logger.Error("load automation rules",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		ruleSet = nil
	}
	actions := append(append([]domain.ActionSpec{}, levelActions...), rules.Evaluate(trigger, ticket, now, ruleSet)...)
	if len(actions) == 0 {
		return nil
	}
	return p.dispatcher.Dispatch(ctx, ticket.ID, actions)
}

// persist writes the engine-owned columns under the optimistic version
// guard. Losing the race discards the whole attempt: the winner's state
// stands and the next trigger converges.
func (p *Pipeline) persist(ctx context.Context, ticket *domain.TicketSLA) (bool, error) {
	err := p.tickets.UpdateTracking(ctx, ticket)
	if errors.Is(err, repository.ErrVersionConflict) {
		p.logger.Debug("lost optimistic write race", zap.String("ticket_id", ticket.ID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func samePolicy(currentID *string, matched *domain.SLAPolicy) bool {
	if currentID == nil || matched == nil {
		return currentID == nil && matched == nil
	}
	return *currentID == matched.ID
}

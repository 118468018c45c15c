package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/policy"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// Service reacts to ticket-mutation and policy-change events by updating the
// SLA projection and running the pipeline for the affected ticket.
type Service struct {
	tickets    repository.TicketSLARepository
	pipeline   *Pipeline
	resolver   *policy.Resolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewService creates the event-driven side of the engine.
func NewService(tickets repository.TicketSLARepository, pipeline *Pipeline, resolver *policy.Resolver, dispatcher events.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		tickets:    tickets,
		pipeline:   pipeline,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (s *Service) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketCreated, s.handleTicketCreated)
	s.dispatcher.Subscribe(events.EventFirstResponseRecorded, s.handleFirstResponse)
	s.dispatcher.Subscribe(events.EventTicketResolved, s.handleResolved)
	s.dispatcher.Subscribe(events.EventTicketPriorityChanged, s.handlePriorityChanged)
	s.dispatcher.Subscribe(events.EventTicketCategoryChanged, s.handleCategoryChanged)
	s.dispatcher.Subscribe(events.EventPolicyReassigned, s.handlePolicyReassigned)
	s.dispatcher.Subscribe(events.EventPolicyPublished, s.handlePolicyChanged)
	s.dispatcher.Subscribe(events.EventPolicyDeactivated, s.handlePolicyChanged)
}

func (s *Service) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		s.logger.Warn("ticket_created with unexpected payload", zap.String("ticket_id", event.TicketID))
		return nil
	}
	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = event.Timestamp
	}
	ticket := &domain.TicketSLA{
		ID:        event.TicketID,
		TenantID:  event.TenantID,
		Category:  payload.Category,
		Priority:  payload.Priority,
		CreatedAt: createdAt,
		SLAStatus: domain.SLAStatusNotTracked,
	}
	if err := s.tickets.Upsert(ctx, ticket); err != nil {
		return err
	}
	return s.pipeline.Track(ctx, event.TicketID, time.Now())
}

func (s *Service) handleFirstResponse(ctx context.Context, event events.Event) error {
	at := event.Timestamp
	if payload, ok := event.Payload.(events.FirstResponsePayload); ok && !payload.RespondedAt.IsZero() {
		at = payload.RespondedAt
	}
	if err := s.tickets.SetFirstResponded(ctx, event.TicketID, at); err != nil {
		return err
	}
	return s.pipeline.Run(ctx, event.TicketID, time.Now())
}

func (s *Service) handleResolved(ctx context.Context, event events.Event) error {
	at := event.Timestamp
	if payload, ok := event.Payload.(events.TicketResolvedPayload); ok && !payload.ResolvedAt.IsZero() {
		at = payload.ResolvedAt
	}
	if err := s.tickets.SetResolved(ctx, event.TicketID, at); err != nil {
		return err
	}
	return s.pipeline.Run(ctx, event.TicketID, time.Now())
}

func (s *Service) handlePriorityChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PriorityChangedPayload)
	if !ok {
		return nil
	}
	ticket, err := s.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return err
	}
	if err := s.tickets.SetCategoryPriority(ctx, event.TicketID, ticket.Category, payload.NewPriority); err != nil {
		return err
	}
	return s.pipeline.Reclassify(ctx, event.TicketID, time.Now())
}

func (s *Service) handleCategoryChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CategoryChangedPayload)
	if !ok {
		return nil
	}
	ticket, err := s.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return err
	}
	if err := s.tickets.SetCategoryPriority(ctx, event.TicketID, payload.NewCategory, ticket.Priority); err != nil {
		return err
	}
	return s.pipeline.Reclassify(ctx, event.TicketID, time.Now())
}

func (s *Service) handlePolicyReassigned(ctx context.Context, event events.Event) error {
	return s.pipeline.RePolicy(ctx, event.TicketID, time.Now())
}

func (s *Service) handlePolicyChanged(ctx context.Context, event events.Event) error {
	s.resolver.Invalidate(ctx, event.TenantID)
	return nil
}

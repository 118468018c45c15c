package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// Deadlines holds the absolute commitment instants for one ticket+policy pair.
type Deadlines struct {
	FirstResponse time.Time
	Resolution    time.Time
}

// ComputeDeadlines derives both deadlines from the ticket's creation instant,
// never from "now", so re-evaluating the same ticket+policy pair is
// deterministic. Called at ticket creation and at re-policy; the periodic
// sweep only reads stored deadlines.
func ComputeDeadlines(ctx context.Context, engine *calendar.Engine, ticket *domain.TicketSLA, policy *domain.SLAPolicy) (Deadlines, error) {
	firstResponse, err := engine.AddBudget(ctx, ticket.CreatedAt, policy.FirstResponseBudget, policy.BusinessHoursOnly, policy.BusinessCalendarID)
	if err != nil {
		return Deadlines{}, fmt.Errorf("first-response deadline for ticket %s: %w", ticket.ID, err)
	}
	resolution, err := engine.AddBudget(ctx, ticket.CreatedAt, policy.ResolutionBudget, policy.BusinessHoursOnly, policy.BusinessCalendarID)
	if err != nil {
		return Deadlines{}, fmt.Errorf("resolution deadline for ticket %s: %w", ticket.ID, err)
	}
	return Deadlines{FirstResponse: firstResponse, Resolution: resolution}, nil
}

package sla

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Transition describes an escalation-level advance the pipeline must persist
// and act on.
type Transition struct {
	Level       int
	TriggerKind domain.TriggerKind
	Actions     []domain.ActionSpec
}

// NextTransition decides whether the ticket should advance to a higher
// escalation level given the classifier's output. Levels are monotonic:
// they never decrease, and resolution freezes them. Returns nil when no
// advance is due.
func NextTransition(policy *domain.SLAPolicy, ticket *domain.TicketSLA, cls Classification, now time.Time) *Transition {
	if policy == nil || ticket.ResolutionDeadline == nil {
		return nil
	}
	// Resolution terminates the state machine except for the late-resolution
	// breach itself, which must still be recorded exactly once.
	if ticket.ResolvedAt != nil && !cls.ResolutionBreached {
		return nil
	}

	level, actions, found := highestSatisfied(policy, cls, *ticket.ResolutionDeadline, now)
	if cls.Status == domain.SLAStatusBreached && !hasBreachedMarker(policy.EscalationLevels) {
		// Terminal step beyond the last configured level: a breach always
		// produces a level transition even when the policy defines no
		// explicit breached marker.
		level, actions, found = domain.BreachedLevel, nil, true
	}
	if !found || level <= ticket.EscalationLevel {
		return nil
	}
	return &Transition{
		Level:       level,
		TriggerKind: triggerKind(cls),
		Actions:     actions,
	}
}

// highestSatisfied scans the policy's ordered levels for the highest one
// whose threshold has been crossed. Breached markers match only a breached
// classification.
func highestSatisfied(policy *domain.SLAPolicy, cls Classification, resolutionDeadline time.Time, now time.Time) (int, []domain.ActionSpec, bool) {
	bestLevel := 0
	var bestActions []domain.ActionSpec
	found := false
	for _, lvl := range policy.EscalationLevels {
		satisfied := false
		switch {
		case lvl.Breached:
			satisfied = cls.Status == domain.SLAStatusBreached
		case lvl.ThresholdFraction != nil:
			satisfied = cls.FractionConsumed >= *lvl.ThresholdFraction
		case lvl.ThresholdBefore != nil:
			satisfied = !now.Before(resolutionDeadline.Add(-*lvl.ThresholdBefore))
		}
		if satisfied && (!found || lvl.Level > bestLevel) {
			bestLevel = lvl.Level
			bestActions = lvl.Actions
			found = true
		}
	}
	return bestLevel, bestActions, found
}

func hasBreachedMarker(levels []domain.EscalationLevelSpec) bool {
	for _, lvl := range levels {
		if lvl.Breached {
			return true
		}
	}
	return false
}

// triggerKind names the violated sub-commitment. A ticket past its resolution
// deadline escalates on the resolution commitment even if first response was
// also missed.
func triggerKind(cls Classification) domain.TriggerKind {
	if cls.FirstResponseMissed && !cls.ResolutionBreached {
		return domain.TriggerFirstResponse
	}
	return domain.TriggerResolution
}

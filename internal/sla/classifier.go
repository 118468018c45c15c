package sla

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Classification is the classifier's full output: the discrete compliance
// state plus the continuous budget-consumption value the state machine keys
// thresholds off.
type Classification struct {
	Status              domain.SLAStatus
	FractionConsumed    float64
	FirstResponseMissed bool
	ResolutionBreached  bool
}

// Classify computes the compliance state of a ticket at the given instant.
// It is pure and is the single source of truth for SLA status: both the
// scheduler and any read path must go through it; no other code decides
// status independently.
func Classify(ticket *domain.TicketSLA, policy *domain.SLAPolicy, now time.Time) Classification {
	// Untracked is decided from inputs only. The persisted status is this
	// function's output and must never gate it, or a freshly created ticket
	// could never leave not_tracked.
	if policy == nil || ticket.ResolutionDeadline == nil || ticket.FirstResponseDeadline == nil {
		return Classification{Status: domain.SLAStatusNotTracked}
	}

	resolutionDeadline := *ticket.ResolutionDeadline
	firstResponseDeadline := *ticket.FirstResponseDeadline

	// Resolution freezes status. Resolving late is a breach; resolving in
	// time keeps whatever trajectory the ticket was on, it never improves it.
	if ticket.ResolvedAt != nil {
		resolvedAt := *ticket.ResolvedAt
		if resolvedAt.After(resolutionDeadline) {
			return Classification{
				Status:             domain.SLAStatusBreached,
				FractionConsumed:   fractionConsumed(ticket.CreatedAt, resolutionDeadline, resolvedAt),
				ResolutionBreached: true,
			}
		}
		return Classification{
			Status:           frozenStatus(ticket.SLAStatus),
			FractionConsumed: fractionConsumed(ticket.CreatedAt, resolutionDeadline, resolvedAt),
		}
	}

	if now.After(resolutionDeadline) {
		return Classification{
			Status:              domain.SLAStatusBreached,
			FractionConsumed:    1,
			ResolutionBreached:  true,
			FirstResponseMissed: ticket.FirstRespondedAt == nil && now.After(firstResponseDeadline),
		}
	}

	fraction := fractionConsumed(ticket.CreatedAt, resolutionDeadline, now)

	// Missing the first-response commitment is itself a breach, surfaced via
	// the same status field and distinguished by trigger kind downstream.
	if ticket.FirstRespondedAt == nil && now.After(firstResponseDeadline) {
		return Classification{
			Status:              domain.SLAStatusBreached,
			FractionConsumed:    fraction,
			FirstResponseMissed: true,
		}
	}

	if atRisk(policy, resolutionDeadline, fraction, now) {
		return Classification{Status: domain.SLAStatusAtRisk, FractionConsumed: fraction}
	}
	return Classification{Status: domain.SLAStatusOnTrack, FractionConsumed: fraction}
}

// atRisk reports whether any pre-breach threshold has been crossed. Policies
// may express thresholds as a fraction of budget consumed or as an absolute
// window before the deadline; with no explicit thresholds the default
// fraction applies.
func atRisk(policy *domain.SLAPolicy, resolutionDeadline time.Time, fraction float64, now time.Time) bool {
	hasExplicit := false
	for _, lvl := range policy.EscalationLevels {
		switch {
		case lvl.ThresholdFraction != nil:
			hasExplicit = true
			if fraction >= *lvl.ThresholdFraction {
				return true
			}
		case lvl.ThresholdBefore != nil:
			hasExplicit = true
			if !now.Before(resolutionDeadline.Add(-*lvl.ThresholdBefore)) {
				return true
			}
		}
	}
	if !hasExplicit {
		return fraction >= domain.DefaultAtRiskFraction
	}
	return false
}

func fractionConsumed(createdAt, resolutionDeadline, at time.Time) float64 {
	total := resolutionDeadline.Sub(createdAt)
	if total <= 0 {
		return 1
	}
	fraction := float64(at.Sub(createdAt)) / float64(total)
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// frozenStatus retains the last pre-resolution status. Untracked and breached
// never reach here via the frozen path; a zero value defaults to on_track.
func frozenStatus(status domain.SLAStatus) domain.SLAStatus {
	if status == "" || status == domain.SLAStatusNotTracked {
		return domain.SLAStatusOnTrack
	}
	return status
}

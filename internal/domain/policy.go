package domain

import "time"

// SLAPolicy is a versioned, immutable-once-published SLA configuration.
type SLAPolicy struct {
	ID                  string
	TenantID            string
	MatchCategory       *string
	MatchPriority       *TicketPriority
	FirstResponseBudget time.Duration
	ResolutionBudget    time.Duration
	BusinessHoursOnly   bool
	BusinessCalendarID  *string
	EscalationLevels    []EscalationLevelSpec
	Active              bool
	ActivatedAt         time.Time
	CreatedAt           time.Time
}

// EscalationLevelSpec configures one step of a policy's escalation ladder.
// Exactly one of ThresholdFraction, ThresholdBefore or Breached must be set.
type EscalationLevelSpec struct {
	Level             int            `json:"level"`
	ThresholdFraction *float64       `json:"threshold_fraction,omitempty"`
	ThresholdBefore   *time.Duration `json:"threshold_before_ns,omitempty"`
	Breached          bool           `json:"breached,omitempty"`
	Actions           []ActionSpec   `json:"actions"`
}

// DefaultAtRiskFraction applies when a policy defines no fractional thresholds.
const DefaultAtRiskFraction = 0.8

// LowestFraction returns the smallest configured fractional threshold, or the
// default when the policy has none.
func (p *SLAPolicy) LowestFraction() float64 {
	lowest := DefaultAtRiskFraction
	found := false
	for _, lvl := range p.EscalationLevels {
		if lvl.ThresholdFraction == nil {
			continue
		}
		if !found || *lvl.ThresholdFraction < lowest {
			lowest = *lvl.ThresholdFraction
			found = true
		}
	}
	return lowest
}

// Matches reports whether the policy's match tuple covers the given
// category/priority pair, wildcards included.
func (p *SLAPolicy) Matches(category string, priority TicketPriority) bool {
	if p.MatchCategory != nil && *p.MatchCategory != category {
		return false
	}
	if p.MatchPriority != nil && *p.MatchPriority != priority {
		return false
	}
	return true
}

// Specificity ranks the match tuple for resolution precedence: exact matches
// beat single wildcards, which beat the tenant default.
func (p *SLAPolicy) Specificity() int {
	score := 0
	if p.MatchCategory != nil {
		score += 2
	}
	if p.MatchPriority != nil {
		score++
	}
	return score
}

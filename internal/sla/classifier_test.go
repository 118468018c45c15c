package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/sla-engine/internal/domain"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func trackedTicket() *domain.TicketSLA {
	policyID := "pol-1"
	frDeadline := baseTime.Add(time.Hour)
	resDeadline := baseTime.Add(10 * time.Hour)
	return &domain.TicketSLA{
		ID:                    "tic-1",
		TenantID:              "acme",
		Category:              "billing",
		Priority:              domain.TicketPriorityHigh,
		CreatedAt:             baseTime,
		CurrentPolicyID:       &policyID,
		FirstResponseDeadline: &frDeadline,
		ResolutionDeadline:    &resDeadline,
		SLAStatus:             domain.SLAStatusOnTrack,
		Version:               1,
	}
}

func plainPolicy(levels ...domain.EscalationLevelSpec) *domain.SLAPolicy {
	return &domain.SLAPolicy{
		ID:                  "pol-1",
		TenantID:            "acme",
		FirstResponseBudget: time.Hour,
		ResolutionBudget:    10 * time.Hour,
		EscalationLevels:    levels,
		Active:              true,
		ActivatedAt:         baseTime.Add(-24 * time.Hour),
	}
}

func fractionLevel(level int, fraction float64, actions ...domain.ActionSpec) domain.EscalationLevelSpec {
	return domain.EscalationLevelSpec{Level: level, ThresholdFraction: &fraction, Actions: actions}
}

func respondedAt(t *domain.TicketSLA, at time.Time) *domain.TicketSLA {
	t.FirstRespondedAt = &at
	return t
}

func resolvedAt(t *domain.TicketSLA, at time.Time) *domain.TicketSLA {
	t.ResolvedAt = &at
	return t
}

func TestClassify_NotTracked(t *testing.T) {
	ticket := trackedTicket()
	ticket.CurrentPolicyID = nil
	ticket.FirstResponseDeadline = nil
	ticket.ResolutionDeadline = nil
	ticket.SLAStatus = domain.SLAStatusNotTracked

	cls := Classify(ticket, nil, baseTime)
	assert.Equal(t, domain.SLAStatusNotTracked, cls.Status)
}

func TestClassify_MissingDeadlinesNotTracked(t *testing.T) {
	ticket := trackedTicket()
	ticket.ResolutionDeadline = nil

	cls := Classify(ticket, plainPolicy(), baseTime)
	assert.Equal(t, domain.SLAStatusNotTracked, cls.Status)
}

func TestClassify_StaleStatusDoesNotGate(t *testing.T) {
	// A freshly bound ticket still carries the persisted not_tracked
	// status; classification must look only at the policy and deadlines.
	ticket := trackedTicket()
	ticket.SLAStatus = domain.SLAStatusNotTracked

	cls := Classify(ticket, plainPolicy(), baseTime.Add(time.Hour))
	assert.Equal(t, domain.SLAStatusOnTrack, cls.Status)
}

func TestClassify_OnTrackEarly(t *testing.T) {
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))

	cls := Classify(ticket, plainPolicy(), baseTime.Add(time.Hour))
	assert.Equal(t, domain.SLAStatusOnTrack, cls.Status)
	assert.InDelta(t, 0.1, cls.FractionConsumed, 1e-9)
	assert.False(t, cls.FirstResponseMissed)
	assert.False(t, cls.ResolutionBreached)
}

func TestClassify_AtRiskAtDefaultFraction(t *testing.T) {
	// No explicit thresholds: the default fraction applies.
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))

	cls := Classify(ticket, plainPolicy(), baseTime.Add(8*time.Hour))
	assert.Equal(t, domain.SLAStatusAtRisk, cls.Status)
	assert.InDelta(t, 0.8, cls.FractionConsumed, 1e-9)
}

func TestClassify_AtRiskAtExplicitFraction(t *testing.T) {
	policy := plainPolicy(fractionLevel(1, 0.5))
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))

	assert.Equal(t, domain.SLAStatusOnTrack, Classify(ticket, policy, baseTime.Add(4*time.Hour)).Status)
	assert.Equal(t, domain.SLAStatusAtRisk, Classify(ticket, policy, baseTime.Add(5*time.Hour)).Status)
}

func TestClassify_AtRiskAtAbsoluteThreshold(t *testing.T) {
	before := 2 * time.Hour
	policy := plainPolicy(domain.EscalationLevelSpec{Level: 1, ThresholdBefore: &before})
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))

	// Explicit absolute thresholds suppress the default fraction.
	assert.Equal(t, domain.SLAStatusOnTrack, Classify(ticket, policy, baseTime.Add(7*time.Hour)).Status)
	assert.Equal(t, domain.SLAStatusAtRisk, Classify(ticket, policy, baseTime.Add(8*time.Hour)).Status)
}

func TestClassify_FirstResponseMissed(t *testing.T) {
	ticket := trackedTicket()

	cls := Classify(ticket, plainPolicy(), baseTime.Add(90*time.Minute))
	assert.Equal(t, domain.SLAStatusBreached, cls.Status)
	assert.True(t, cls.FirstResponseMissed)
	assert.False(t, cls.ResolutionBreached)
}

func TestClassify_ResolutionDeadlinePassed(t *testing.T) {
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))

	cls := Classify(ticket, plainPolicy(), baseTime.Add(11*time.Hour))
	assert.Equal(t, domain.SLAStatusBreached, cls.Status)
	assert.True(t, cls.ResolutionBreached)
	assert.False(t, cls.FirstResponseMissed)
	assert.Equal(t, 1.0, cls.FractionConsumed)
}

func TestClassify_BothCommitmentsMissed(t *testing.T) {
	ticket := trackedTicket()

	cls := Classify(ticket, plainPolicy(), baseTime.Add(11*time.Hour))
	assert.Equal(t, domain.SLAStatusBreached, cls.Status)
	assert.True(t, cls.ResolutionBreached)
	assert.True(t, cls.FirstResponseMissed)
}

func TestClassify_ResolvedInTimeFreezesStatus(t *testing.T) {
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))
	ticket.SLAStatus = domain.SLAStatusAtRisk
	resolvedAt(ticket, baseTime.Add(9*time.Hour))

	// Evaluated long after the deadline: resolution froze the status.
	cls := Classify(ticket, plainPolicy(), baseTime.Add(48*time.Hour))
	assert.Equal(t, domain.SLAStatusAtRisk, cls.Status)
	assert.False(t, cls.ResolutionBreached)
}

func TestClassify_ResolvedLateIsBreach(t *testing.T) {
	ticket := respondedAt(trackedTicket(), baseTime.Add(30*time.Minute))
	ticket.SLAStatus = domain.SLAStatusAtRisk
	resolvedAt(ticket, baseTime.Add(12*time.Hour))

	cls := Classify(ticket, plainPolicy(), baseTime.Add(12*time.Hour))
	assert.Equal(t, domain.SLAStatusBreached, cls.Status)
	assert.True(t, cls.ResolutionBreached)
}

func TestClassify_FrozenBreachStaysBreached(t *testing.T) {
	// A first-response breach is not undone by resolving within the
	// resolution budget.
	ticket := trackedTicket()
	ticket.SLAStatus = domain.SLAStatusBreached
	resolvedAt(ticket, baseTime.Add(5*time.Hour))

	cls := Classify(ticket, plainPolicy(), baseTime.Add(6*time.Hour))
	assert.Equal(t, domain.SLAStatusBreached, cls.Status)
}

func TestClassify_FractionNeverExceedsBounds(t *testing.T) {
	ticket := respondedAt(trackedTicket(), baseTime.Add(time.Minute))

	early := Classify(ticket, plainPolicy(), baseTime.Add(-time.Hour))
	assert.GreaterOrEqual(t, early.FractionConsumed, 0.0)

	resolvedAt(ticket, baseTime.Add(20*time.Hour))
	late := Classify(ticket, plainPolicy(), baseTime.Add(20*time.Hour))
	assert.LessOrEqual(t, late.FractionConsumed, 1.0)
}

package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/policy"
	"github.com/spec-kit/sla-engine/internal/repository"
)

var createdAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeTicketRepo struct {
	mu            sync.Mutex
	tickets       map[string]*domain.TicketSLA
	conflictsLeft int
	failGetID     string
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.TicketSLA{}}
}

func (f *fakeTicketRepo) put(t *domain.TicketSLA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *t
	f.tickets[t.ID] = &clone
}

func (f *fakeTicketRepo) Upsert(_ context.Context, ticket *domain.TicketSLA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.tickets[ticket.ID]; ok {
		existing.Category = ticket.Category
		existing.Priority = ticket.Priority
		return nil
	}
	clone := *ticket
	clone.Version = 1
	f.tickets[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.TicketSLA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetID == id {
		return nil, errors.New("storage unavailable")
	}
	stored, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (f *fakeTicketRepo) UpdateTracking(_ context.Context, ticket *domain.TicketSLA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return repository.ErrVersionConflict
	}
	stored, ok := f.tickets[ticket.ID]
	if !ok || stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	stored.CurrentPolicyID = ticket.CurrentPolicyID
	stored.FirstResponseDeadline = ticket.FirstResponseDeadline
	stored.ResolutionDeadline = ticket.ResolutionDeadline
	stored.SLAStatus = ticket.SLAStatus
	stored.EscalationLevel = ticket.EscalationLevel
	stored.Version++
	ticket.Version = stored.Version
	return nil
}

func (f *fakeTicketRepo) SetFirstResponded(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tickets[id]; ok && t.FirstRespondedAt == nil {
		t.FirstRespondedAt = &at
	}
	return nil
}

func (f *fakeTicketRepo) SetResolved(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tickets[id]; ok && t.ResolvedAt == nil {
		t.ResolvedAt = &at
	}
	return nil
}

func (f *fakeTicketRepo) SetCategoryPriority(_ context.Context, id, category string, priority domain.TicketPriority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Category = category
	t.Priority = priority
	return nil
}

func (f *fakeTicketRepo) ListOpenTracked(_ context.Context, afterID string, limit int) ([]domain.TicketSLA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.TicketSLA
	for _, t := range f.tickets {
		if t.ResolvedAt == nil && t.SLAStatus != domain.SLAStatusNotTracked && t.ID > afterID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeTicketRepo) ListByStatus(_ context.Context, _ string, _ domain.SLAStatus, _, _ int) ([]domain.TicketSLA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, nil
}

type fakePolicyRepo struct {
	policies map[string]*domain.SLAPolicy
}

func newFakePolicyRepo(policies ...*domain.SLAPolicy) *fakePolicyRepo {
	repo := &fakePolicyRepo{policies: map[string]*domain.SLAPolicy{}}
	for _, p := range policies {
		repo.policies[p.ID] = p
	}
	return repo
}

func (f *fakePolicyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	p, ok := f.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (f *fakePolicyRepo) ListActiveByTenant(_ context.Context, tenantID string) ([]domain.SLAPolicy, error) {
	var result []domain.SLAPolicy
	for _, p := range f.policies {
		if p.TenantID == tenantID && p.Active {
			result = append(result, *p)
		}
	}
	return result, nil
}

type eventKey struct {
	ticketID string
	level    int
	trigger  domain.TriggerKind
}

type fakeEscalationRepo struct {
	mu     sync.Mutex
	events map[eventKey]*domain.EscalationEvent
}

func newFakeEscalationRepo() *fakeEscalationRepo {
	return &fakeEscalationRepo{events: map[eventKey]*domain.EscalationEvent{}}
}

func (f *fakeEscalationRepo) Insert(_ context.Context, event *domain.EscalationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventKey{event.TicketID, event.Level, event.TriggerKind}
	if _, exists := f.events[key]; exists {
		return repository.ErrDuplicateEvent
	}
	clone := *event
	f.events[key] = &clone
	return nil
}

func (f *fakeEscalationRepo) UpdateOutcomes(_ context.Context, eventID string, outcomes []domain.ActionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event.ID == eventID {
			event.ActionsDispatched = outcomes
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeEscalationRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.EscalationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.EscalationEvent
	for _, event := range f.events {
		if event.TicketID == ticketID {
			result = append(result, *event)
		}
	}
	return result, nil
}

type fakeRuleRepo struct {
	rules []domain.AutomationRule
}

func (f *fakeRuleRepo) ListActive(_ context.Context, tenantID string, trigger domain.RuleTrigger) ([]domain.AutomationRule, error) {
	var result []domain.AutomationRule
	for _, r := range f.rules {
		if r.TenantID == tenantID && r.Trigger == trigger && r.Active {
			result = append(result, r)
		}
	}
	return result, nil
}

type fakeCalendarRepo struct {
	calendars map[string]*domain.BusinessCalendar
}

func (f *fakeCalendarRepo) GetByID(_ context.Context, id string) (*domain.BusinessCalendar, error) {
	cal, ok := f.calendars[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cal, nil
}

func (f *fakeCalendarRepo) Upsert(_ context.Context, cal *domain.BusinessCalendar) error {
	if f.calendars == nil {
		f.calendars = map[string]*domain.BusinessCalendar{}
	}
	f.calendars[cal.ID] = cal
	return nil
}

type pipelineFixture struct {
	tickets    *fakeTicketRepo
	policies   *fakePolicyRepo
	escalation *fakeEscalationRepo
	rules      *fakeRuleRepo
	notifier   *fakeCollaborator
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T, policies ...*domain.SLAPolicy) *pipelineFixture {
	t.Helper()
	tickets := newFakeTicketRepo()
	policyRepo := newFakePolicyRepo(policies...)
	escalation := newFakeEscalationRepo()
	rules := &fakeRuleRepo{}
	collaborator := newFakeCollaborator(0)

	pipeline := NewPipeline(PipelineDependencies{
		TicketRepo:     tickets,
		PolicyRepo:     policyRepo,
		EscalationRepo: escalation,
		RuleRepo:       rules,
		Resolver:       policy.NewResolver(policyRepo, nil, zap.NewNop()),
		Calendar:       calendar.NewEngine(&fakeCalendarRepo{}),
		Dispatcher:     NewDispatcher(collaborator, collaborator, dispatchConfig(), zap.NewNop()),
		Logger:         zap.NewNop(),
	})
	return &pipelineFixture{
		tickets:    tickets,
		policies:   policyRepo,
		escalation: escalation,
		rules:      rules,
		notifier:   collaborator,
		pipeline:   pipeline,
	}
}

func escalationPolicy() *domain.SLAPolicy {
	tenth := 0.1
	return &domain.SLAPolicy{
		ID:                  "pol-1",
		TenantID:            "acme",
		FirstResponseBudget: time.Hour,
		ResolutionBudget:    8 * time.Hour,
		EscalationLevels: []domain.EscalationLevelSpec{
			{Level: 1, ThresholdFraction: &tenth, Actions: []domain.ActionSpec{notifySpec()}},
			{Level: 2, Breached: true, Actions: []domain.ActionSpec{notifySpec()}},
		},
		Active:      true,
		ActivatedAt: createdAt.Add(-24 * time.Hour),
	}
}

func seedTicket(f *pipelineFixture) *domain.TicketSLA {
	ticket := &domain.TicketSLA{
		ID:        "tic-1",
		TenantID:  "acme",
		Category:  "billing",
		Priority:  domain.TicketPriorityHigh,
		CreatedAt: createdAt,
		SLAStatus: domain.SLAStatusNotTracked,
		Version:   1,
	}
	f.tickets.put(ticket)
	return ticket
}

func TestTrack_NoPolicyLeavesUntracked(t *testing.T) {
	f := newPipelineFixture(t)
	seedTicket(f)

	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))

	stored := f.tickets.tickets["tic-1"]
	assert.Equal(t, domain.SLAStatusNotTracked, stored.SLAStatus)
	assert.Nil(t, stored.CurrentPolicyID)
	assert.Nil(t, stored.ResolutionDeadline)
}

func TestTrack_SetsDeadlinesAndStatus(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)

	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))

	stored := f.tickets.tickets["tic-1"]
	assert.Equal(t, domain.SLAStatusOnTrack, stored.SLAStatus)
	require.NotNil(t, stored.CurrentPolicyID)
	assert.Equal(t, "pol-1", *stored.CurrentPolicyID)
	require.NotNil(t, stored.FirstResponseDeadline)
	assert.Equal(t, createdAt.Add(time.Hour), *stored.FirstResponseDeadline)
	require.NotNil(t, stored.ResolutionDeadline)
	assert.Equal(t, createdAt.Add(8*time.Hour), *stored.ResolutionDeadline)
	assert.Equal(t, 0, stored.EscalationLevel)
}

func TestTrack_CalendarMisconfigurationLeavesUntracked(t *testing.T) {
	pol := escalationPolicy()
	pol.BusinessHoursOnly = true // no calendar id configured
	f := newPipelineFixture(t, pol)
	seedTicket(f)

	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))

	stored := f.tickets.tickets["tic-1"]
	assert.Equal(t, domain.SLAStatusNotTracked, stored.SLAStatus)
	assert.Nil(t, stored.CurrentPolicyID)
}

func TestRun_FiresEscalationWithOutcomes(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	respondedAt := createdAt.Add(10 * time.Minute)
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", respondedAt))

	// 48 minutes in: fraction 0.1 crossed, level 1 fires.
	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(48*time.Minute)))

	stored := f.tickets.tickets["tic-1"]
	assert.Equal(t, 1, stored.EscalationLevel)

	events, err := f.escalation.ListByTicket(context.Background(), "tic-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Level)
	assert.Equal(t, domain.TriggerResolution, events[0].TriggerKind)
	require.Len(t, events[0].ActionsDispatched, 1)
	assert.True(t, events[0].ActionsDispatched[0].Success)
	assert.Equal(t, 1, f.notifier.calls["notify"])
}

func TestRun_DuplicateEventSkipsDispatch(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))

	// A racing run already recorded level 1 for the resolution commitment.
	require.NoError(t, f.escalation.Insert(context.Background(), &domain.EscalationEvent{
		ID:          "evt-racer",
		TicketID:    "tic-1",
		TenantID:    "acme",
		PolicyID:    "pol-1",
		Level:       1,
		TriggerKind: domain.TriggerResolution,
		FiredAt:     createdAt.Add(47 * time.Minute),
	}))

	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(48*time.Minute)))

	events, err := f.escalation.ListByTicket(context.Background(), "tic-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Zero(t, f.notifier.calls["notify"])
}

func TestRun_ConcurrentRunsFireOnce(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))

	// Two runs race for the same level; the version guard and the event
	// uniqueness constraint must let exactly one fire.
	at := createdAt.Add(48 * time.Minute)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.pipeline.Run(context.Background(), "tic-1", at)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	events, err := f.escalation.ListByTicket(context.Background(), "tic-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Level)
	assert.Equal(t, 1, f.notifier.calls["notify"])
	assert.Equal(t, 1, f.tickets.tickets["tic-1"].EscalationLevel)
}

func TestRun_LostRaceAbortsDispatch(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))
	f.tickets.conflictsLeft = 1

	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(48*time.Minute)))

	events, err := f.escalation.ListByTicket(context.Background(), "tic-1")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, f.notifier.calls["notify"])
}

func TestRun_LateResolutionBreachesOnce(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))
	require.NoError(t, f.tickets.SetResolved(context.Background(), "tic-1", createdAt.Add(8*time.Hour+time.Minute)))

	now := createdAt.Add(8*time.Hour + 2*time.Minute)
	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", now))
	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", now.Add(time.Minute)))

	stored := f.tickets.tickets["tic-1"]
	assert.Equal(t, domain.SLAStatusBreached, stored.SLAStatus)
	assert.Equal(t, 2, stored.EscalationLevel)

	events, err := f.escalation.ListByTicket(context.Background(), "tic-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Level)
	assert.Equal(t, domain.TriggerResolution, events[0].TriggerKind)
}

func TestRun_TimelyResolutionNeverBreaches(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))
	require.NoError(t, f.tickets.SetResolved(context.Background(), "tic-1", createdAt.Add(7*time.Hour+59*time.Minute)))

	// A sweep observing the ticket well past the deadline must not breach it.
	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(9*time.Hour)))

	stored := f.tickets.tickets["tic-1"]
	assert.NotEqual(t, domain.SLAStatusBreached, stored.SLAStatus)
}

func TestRun_UntrackedTicketIsNoop(t *testing.T) {
	f := newPipelineFixture(t)
	seedTicket(f)

	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(time.Hour)))
	assert.Zero(t, f.notifier.calls["notify"])
}

func TestReclassify_SamePolicyKeepsLifecycle(t *testing.T) {
	f := newPipelineFixture(t, escalationPolicy())
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))
	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(48*time.Minute)))
	require.Equal(t, 1, f.tickets.tickets["tic-1"].EscalationLevel)

	require.NoError(t, f.pipeline.Reclassify(context.Background(), "tic-1", createdAt.Add(50*time.Minute)))
	assert.Equal(t, 1, f.tickets.tickets["tic-1"].EscalationLevel)
}

func TestReclassify_DifferentPolicyRestartsLifecycle(t *testing.T) {
	urgentOnly := escalationPolicy()
	urgentOnly.ID = "pol-urgent"
	urgent := domain.TicketPriorityUrgent
	urgentOnly.MatchPriority = &urgent
	urgentOnly.ResolutionBudget = 2 * time.Hour

	f := newPipelineFixture(t, escalationPolicy(), urgentOnly)
	seedTicket(f)
	require.NoError(t, f.pipeline.Track(context.Background(), "tic-1", createdAt))
	require.NoError(t, f.tickets.SetFirstResponded(context.Background(), "tic-1", createdAt.Add(10*time.Minute)))
	require.NoError(t, f.pipeline.Run(context.Background(), "tic-1", createdAt.Add(48*time.Minute)))
	require.Equal(t, 1, f.tickets.tickets["tic-1"].EscalationLevel)

	require.NoError(t, f.tickets.SetCategoryPriority(context.Background(), "tic-1", "billing", domain.TicketPriorityUrgent))
	require.NoError(t, f.pipeline.Reclassify(context.Background(), "tic-1", createdAt.Add(50*time.Minute)))

	stored := f.tickets.tickets["tic-1"]
	require.NotNil(t, stored.CurrentPolicyID)
	assert.Equal(t, "pol-urgent", *stored.CurrentPolicyID)
	assert.Equal(t, 0, stored.EscalationLevel)
	assert.Equal(t, createdAt.Add(2*time.Hour), *stored.ResolutionDeadline)
}

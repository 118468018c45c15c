package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// PolicyRepository reads published SLA policies. Policies are externally
// managed configuration; the engine never writes them.
type PolicyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

const policyColumns = `id, tenant_id, match_category, match_priority, first_response_budget_seconds,
        resolution_budget_seconds, business_hours_only, business_calendar_id, escalation_levels,
        active, activated_at, created_at`

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanPolicy(row)
}

func (r *policyRepository) ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE tenant_id=$1 AND active ORDER BY activated_at DESC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var (
		policy     domain.SLAPolicy
		frSeconds  int64
		resSeconds int64
		levelsJSON []byte
	)
	if err := row.Scan(
		&policy.ID,
		&policy.TenantID,
		&policy.MatchCategory,
		&policy.MatchPriority,
		&frSeconds,
		&resSeconds,
		&policy.BusinessHoursOnly,
		&policy.BusinessCalendarID,
		&levelsJSON,
		&policy.Active,
		&policy.ActivatedAt,
		&policy.CreatedAt,
	); err != nil {
		return nil, err
	}
	policy.FirstResponseBudget = secondsToDuration(frSeconds)
	policy.ResolutionBudget = secondsToDuration(resSeconds)
	if len(levelsJSON) > 0 {
		if err := json.Unmarshal(levelsJSON, &policy.EscalationLevels); err != nil {
			return nil, fmt.Errorf("decode escalation levels for policy %s: %w", policy.ID, err)
		}
	}
	return &policy, nil
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

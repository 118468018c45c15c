package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// RuleRepository reads automation rules. Rules are externally managed
// configuration; the engine never writes them.
type RuleRepository interface {
	ListActive(ctx context.Context, tenantID string, trigger domain.RuleTrigger) ([]domain.AutomationRule, error)
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

func (r *ruleRepository) ListActive(ctx context.Context, tenantID string, trigger domain.RuleTrigger) ([]domain.AutomationRule, error) {
	const query = `
        SELECT id, tenant_id, trigger_kind, priority, conditions, actions, active, created_at
        FROM automation_rules
        WHERE tenant_id=$1 AND trigger_kind=$2 AND active
        ORDER BY priority DESC, id`
	rows, err := r.pool.Query(ctx, query, tenantID, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AutomationRule
	for rows.Next() {
		var (
			rule           domain.AutomationRule
			conditionsJSON []byte
			actionsJSON    []byte
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.TenantID,
			&rule.Trigger,
			&rule.Priority,
			&conditionsJSON,
			&actionsJSON,
			&rule.Active,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(conditionsJSON) > 0 {
			if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("decode conditions for rule %s: %w", rule.ID, err)
			}
		}
		if len(actionsJSON) > 0 {
			if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
				return nil, fmt.Errorf("decode actions for rule %s: %w", rule.ID, err)
			}
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

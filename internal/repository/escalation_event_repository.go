package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// ErrDuplicateEvent means another pipeline run already fired this level. The
// caller must skip dispatching actions for it.
var ErrDuplicateEvent = errors.New("escalation event already exists")

const uniqueViolationCode = "23505"

// EscalationEventRepository persists the append-only escalation log. The
// unique index on (ticket_id, level, trigger_kind) is the at-most-once guard.
type EscalationEventRepository interface {
	Insert(ctx context.Context, event *domain.EscalationEvent) error
	UpdateOutcomes(ctx context.Context, eventID string, outcomes []domain.ActionOutcome) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEvent, error)
}

type escalationEventRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationEventRepository instantiates repository.
func NewEscalationEventRepository(pool *pgxpool.Pool) EscalationEventRepository {
	return &escalationEventRepository{pool: pool}
}

func (r *escalationEventRepository) Insert(ctx context.Context, event *domain.EscalationEvent) error {
	outcomes, err := json.Marshal(event.ActionsDispatched)
	if err != nil {
		return fmt.Errorf("encode action outcomes: %w", err)
	}
	const query = `
        INSERT INTO escalation_events (id, ticket_id, tenant_id, policy_id, level, trigger_kind, fired_at, actions_dispatched)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.pool.Exec(ctx, query,
		event.ID,
		event.TicketID,
		event.TenantID,
		event.PolicyID,
		event.Level,
		event.TriggerKind,
		event.FiredAt,
		outcomes,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *escalationEventRepository) UpdateOutcomes(ctx context.Context, eventID string, outcomes []domain.ActionOutcome) error {
	encoded, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("encode action outcomes: %w", err)
	}
	const query = `UPDATE escalation_events SET actions_dispatched=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, encoded, eventID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationEventRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEvent, error) {
	const query = `
        SELECT id, ticket_id, tenant_id, policy_id, level, trigger_kind, fired_at, actions_dispatched
        FROM escalation_events WHERE ticket_id=$1
        ORDER BY fired_at, level`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationEvent
	for rows.Next() {
		var (
			event        domain.EscalationEvent
			outcomesJSON []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.TenantID,
			&event.PolicyID,
			&event.Level,
			&event.TriggerKind,
			&event.FiredAt,
			&outcomesJSON,
		); err != nil {
			return nil, err
		}
		if len(outcomesJSON) > 0 {
			if err := json.Unmarshal(outcomesJSON, &event.ActionsDispatched); err != nil {
				return nil, fmt.Errorf("decode action outcomes for event %s: %w", event.ID, err)
			}
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// ErrVersionConflict signals a lost optimistic-concurrency race. The other
// writer's result is authoritative; a later reconciliation converges.
var ErrVersionConflict = errors.New("ticket sla version conflict")

// TicketSLARepository persists the SLA projection of tickets.
type TicketSLARepository interface {
	Upsert(ctx context.Context, ticket *domain.TicketSLA) error
	GetByID(ctx context.Context, id string) (*domain.TicketSLA, error)
	// UpdateTracking writes the engine-owned columns conditioned on version.
	UpdateTracking(ctx context.Context, ticket *domain.TicketSLA) error
	SetFirstResponded(ctx context.Context, id string, at time.Time) error
	SetResolved(ctx context.Context, id string, at time.Time) error
	SetCategoryPriority(ctx context.Context, id, category string, priority domain.TicketPriority) error
	// ListOpenTracked pages through open, tracked tickets by id keyset.
	ListOpenTracked(ctx context.Context, afterID string, limit int) ([]domain.TicketSLA, error)
	ListByStatus(ctx context.Context, tenantID string, status domain.SLAStatus, limit, offset int) ([]domain.TicketSLA, error)
}

type ticketSLARepository struct {
	pool *pgxpool.Pool
}

// NewTicketSLARepository instantiates repository.
func NewTicketSLARepository(pool *pgxpool.Pool) TicketSLARepository {
	return &ticketSLARepository{pool: pool}
}

const ticketSLAColumns = `id, tenant_id, category, priority, created_at, first_responded_at,
        resolved_at, current_policy_id, first_response_deadline, resolution_deadline,
        sla_status, escalation_level, version`

func (r *ticketSLARepository) Upsert(ctx context.Context, ticket *domain.TicketSLA) error {
	const query = `
        INSERT INTO ticket_sla (id, tenant_id, category, priority, created_at, sla_status, escalation_level, version)
        VALUES ($1,$2,$3,$4,$5,$6,0,1)
        ON CONFLICT (id) DO UPDATE SET category=EXCLUDED.category, priority=EXCLUDED.priority`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.TenantID,
		ticket.Category,
		ticket.Priority,
		ticket.CreatedAt,
		ticket.SLAStatus,
	)
	return err
}

func (r *ticketSLARepository) GetByID(ctx context.Context, id string) (*domain.TicketSLA, error) {
	query := `SELECT ` + ticketSLAColumns + ` FROM ticket_sla WHERE id=$1`
	var ticket domain.TicketSLA
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.Category,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.FirstRespondedAt,
		&ticket.ResolvedAt,
		&ticket.CurrentPolicyID,
		&ticket.FirstResponseDeadline,
		&ticket.ResolutionDeadline,
		&ticket.SLAStatus,
		&ticket.EscalationLevel,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketSLARepository) UpdateTracking(ctx context.Context, ticket *domain.TicketSLA) error {
	const query = `
        UPDATE ticket_sla
        SET current_policy_id=$1, first_response_deadline=$2, resolution_deadline=$3,
            sla_status=$4, escalation_level=$5, version=version+1
        WHERE id=$6 AND version=$7`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.CurrentPolicyID,
		ticket.FirstResponseDeadline,
		ticket.ResolutionDeadline,
		ticket.SLAStatus,
		ticket.EscalationLevel,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	ticket.Version++
	return nil
}

func (r *ticketSLARepository) SetFirstResponded(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE ticket_sla SET first_responded_at=$1 WHERE id=$2 AND first_responded_at IS NULL`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}

func (r *ticketSLARepository) SetResolved(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE ticket_sla SET resolved_at=$1 WHERE id=$2 AND resolved_at IS NULL`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}

func (r *ticketSLARepository) SetCategoryPriority(ctx context.Context, id, category string, priority domain.TicketPriority) error {
	const query = `UPDATE ticket_sla SET category=$1, priority=$2 WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, category, priority, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketSLARepository) ListOpenTracked(ctx context.Context, afterID string, limit int) ([]domain.TicketSLA, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + ticketSLAColumns + `
        FROM ticket_sla
        WHERE resolved_at IS NULL AND sla_status <> 'not_tracked' AND id > $1
        ORDER BY id
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTicketSLAs(rows)
}

func (r *ticketSLARepository) ListByStatus(ctx context.Context, tenantID string, status domain.SLAStatus, limit, offset int) ([]domain.TicketSLA, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketSLAColumns + `
        FROM ticket_sla
        WHERE tenant_id=$1 AND sla_status=$2
        ORDER BY resolution_deadline NULLS LAST, id
        LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTicketSLAs(rows)
}

func scanTicketSLAs(rows pgx.Rows) ([]domain.TicketSLA, error) {
	var result []domain.TicketSLA
	for rows.Next() {
		var ticket domain.TicketSLA
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.Category,
			&ticket.Priority,
			&ticket.CreatedAt,
			&ticket.FirstRespondedAt,
			&ticket.ResolvedAt,
			&ticket.CurrentPolicyID,
			&ticket.FirstResponseDeadline,
			&ticket.ResolutionDeadline,
			&ticket.SLAStatus,
			&ticket.EscalationLevel,
			&ticket.Version,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

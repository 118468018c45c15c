package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// CalendarRepository persists business calendars. Calendars are seeded from
// YAML files at boot and read on the deadline-computation path.
type CalendarRepository interface {
	GetByID(ctx context.Context, id string) (*domain.BusinessCalendar, error)
	Upsert(ctx context.Context, calendar *domain.BusinessCalendar) error
}

type calendarRepository struct {
	pool *pgxpool.Pool
}

// NewCalendarRepository instantiates repository.
func NewCalendarRepository(pool *pgxpool.Pool) CalendarRepository {
	return &calendarRepository{pool: pool}
}

func (r *calendarRepository) GetByID(ctx context.Context, id string) (*domain.BusinessCalendar, error) {
	const query = `SELECT id, name, timezone, windows, holidays FROM business_calendars WHERE id=$1`
	var (
		calendar     domain.BusinessCalendar
		windowsJSON  []byte
		holidaysJSON []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&calendar.ID,
		&calendar.Name,
		&calendar.Timezone,
		&windowsJSON,
		&holidaysJSON,
	); err != nil {
		return nil, err
	}
	if len(windowsJSON) > 0 {
		if err := json.Unmarshal(windowsJSON, &calendar.Windows); err != nil {
			return nil, fmt.Errorf("decode windows for calendar %s: %w", id, err)
		}
	}
	if len(holidaysJSON) > 0 {
		if err := json.Unmarshal(holidaysJSON, &calendar.Holidays); err != nil {
			return nil, fmt.Errorf("decode holidays for calendar %s: %w", id, err)
		}
	}
	return &calendar, nil
}

func (r *calendarRepository) Upsert(ctx context.Context, calendar *domain.BusinessCalendar) error {
	windows, err := json.Marshal(calendar.Windows)
	if err != nil {
		return fmt.Errorf("encode windows: %w", err)
	}
	holidays, err := json.Marshal(calendar.Holidays)
	if err != nil {
		return fmt.Errorf("encode holidays: %w", err)
	}
	const query = `
        INSERT INTO business_calendars (id, name, timezone, windows, holidays)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, timezone=EXCLUDED.timezone,
            windows=EXCLUDED.windows, holidays=EXCLUDED.holidays`
	_, err = r.pool.Exec(ctx, query, calendar.ID, calendar.Name, calendar.Timezone, windows, holidays)
	return err
}

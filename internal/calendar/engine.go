package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// ErrNoWorkingWindows means a business-hours calendar defines no usable
// working time. Deadline computation must fail loudly rather than fall back
// to wall-clock semantics.
var ErrNoWorkingWindows = errors.New("calendar has no working windows")

// maxWalkDays bounds the business-hours walk so a calendar whose windows are
// all empty (or all holidays) fails instead of spinning forever.
const maxWalkDays = 366 * 5

// Engine converts time budgets into absolute deadline instants.
type Engine struct {
	calendars repository.CalendarRepository
}

// NewEngine constructs the engine.
func NewEngine(calendars repository.CalendarRepository) *Engine {
	return &Engine{calendars: calendars}
}

// AddBudget returns the instant at which the budget is exhausted, starting
// from start. Wall-clock budgets are plain instant arithmetic; business-hours
// budgets walk the named calendar's working windows.
func (e *Engine) AddBudget(ctx context.Context, start time.Time, budget time.Duration, businessHoursOnly bool, calendarID *string) (time.Time, error) {
	if !businessHoursOnly {
		return start.Add(budget), nil
	}
	if calendarID == nil || *calendarID == "" {
		return time.Time{}, fmt.Errorf("business-hours policy without calendar id: %w", ErrNoWorkingWindows)
	}
	cal, err := e.calendars.GetByID(ctx, *calendarID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load calendar %s: %w", *calendarID, err)
	}
	return AddBusinessBudget(cal, start, budget)
}

// AddBusinessBudget walks forward from start through the calendar's working
// windows, accumulating elapsed business duration until the budget is
// exhausted. A start outside any window is first advanced to the next window
// start, so a zero budget lands there.
func AddBusinessBudget(cal *domain.BusinessCalendar, start time.Time, budget time.Duration) (time.Time, error) {
	if len(cal.Windows) == 0 {
		return time.Time{}, fmt.Errorf("calendar %s: %w", cal.ID, ErrNoWorkingWindows)
	}
	loc, err := cal.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar %s: invalid timezone %q: %w", cal.ID, cal.Timezone, err)
	}

	byDay := windowsByWeekday(cal.Windows)
	remaining := budget
	cursor := start.In(loc)

	for day := 0; day < maxWalkDays; day++ {
		if !cal.IsHoliday(cursor) {
			for _, win := range byDay[cursor.Weekday()] {
				winStart := atMinutes(cursor, win.StartMinutes, loc)
				winEnd := atMinutes(cursor, win.EndMinutes, loc)
				if !winEnd.After(winStart) || !winEnd.After(cursor) {
					continue
				}
				if cursor.Before(winStart) {
					cursor = winStart
				}
				if remaining <= 0 {
					return cursor, nil
				}
				available := winEnd.Sub(cursor)
				if available >= remaining {
					return cursor.Add(remaining), nil
				}
				remaining -= available
				cursor = winEnd
			}
		}
		cursor = startOfNextDay(cursor, loc)
	}
	return time.Time{}, fmt.Errorf("calendar %s: budget not exhausted after %d days: %w", cal.ID, maxWalkDays, ErrNoWorkingWindows)
}

func windowsByWeekday(windows []domain.WorkingWindow) map[time.Weekday][]domain.WorkingWindow {
	byDay := make(map[time.Weekday][]domain.WorkingWindow)
	for _, win := range windows {
		byDay[win.Weekday] = append(byDay[win.Weekday], win)
	}
	for day := range byDay {
		wins := byDay[day]
		sort.Slice(wins, func(i, j int) bool { return wins[i].StartMinutes < wins[j].StartMinutes })
	}
	return byDay
}

func atMinutes(day time.Time, minutes int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minutes, 0, 0, loc)
}

func startOfNextDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

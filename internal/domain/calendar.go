package domain

import "time"

// WorkingWindow is one recurring working period on a weekday, expressed in the
// calendar's local time zone as minutes from midnight.
type WorkingWindow struct {
	Weekday      time.Weekday `json:"weekday"`
	StartMinutes int          `json:"start_minutes"`
	EndMinutes   int          `json:"end_minutes"`
}

// Holiday excludes a whole calendar day from working time.
type Holiday struct {
	Name  string     `json:"name"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
	Year  int        `json:"year,omitempty"` // 0 = recurring every year
}

// BusinessCalendar defines the working windows and holidays used for
// business-hours budget arithmetic.
type BusinessCalendar struct {
	ID       string
	Name     string
	Timezone string
	Windows  []WorkingWindow
	Holidays []Holiday
}

// Location resolves the calendar's time zone.
func (c *BusinessCalendar) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// IsHoliday reports whether the given local date is excluded.
func (c *BusinessCalendar) IsHoliday(t time.Time) bool {
	for _, h := range c.Holidays {
		if h.Month != t.Month() || h.Day != t.Day() {
			continue
		}
		if h.Year == 0 || h.Year == t.Year() {
			return true
		}
	}
	return false
}

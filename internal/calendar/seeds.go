package calendar

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// seedFile mirrors the YAML shape of a business calendar definition.
type seedFile struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	Windows  []struct {
		Days  []string `yaml:"days"`
		Start string   `yaml:"start"`
		End   string   `yaml:"end"`
	} `yaml:"windows"`
	Holidays []struct {
		Name string `yaml:"name"`
		Date string `yaml:"date"` // "MM-DD" recurring or "YYYY-MM-DD" fixed
	} `yaml:"holidays"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// LoadSeedDir parses every .yaml/.yml file in dir into calendars. A missing
// directory yields no calendars and no error.
func LoadSeedDir(dir string) ([]domain.BusinessCalendar, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read calendar seeds: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	calendars := make([]domain.BusinessCalendar, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read calendar seed %s: %w", name, err)
		}
		cal, err := ParseSeed(content)
		if err != nil {
			return nil, fmt.Errorf("parse calendar seed %s: %w", name, err)
		}
		calendars = append(calendars, *cal)
	}
	return calendars, nil
}

// ParseSeed decodes one YAML calendar definition.
func ParseSeed(content []byte) (*domain.BusinessCalendar, error) {
	var seed seedFile
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, err
	}
	if seed.ID == "" {
		return nil, fmt.Errorf("calendar id required")
	}
	if seed.Timezone == "" {
		seed.Timezone = "UTC"
	}

	cal := &domain.BusinessCalendar{
		ID:       seed.ID,
		Name:     seed.Name,
		Timezone: seed.Timezone,
	}
	for _, win := range seed.Windows {
		start, err := parseClock(win.Start)
		if err != nil {
			return nil, fmt.Errorf("window start %q: %w", win.Start, err)
		}
		end, err := parseClock(win.End)
		if err != nil {
			return nil, fmt.Errorf("window end %q: %w", win.End, err)
		}
		if end <= start {
			return nil, fmt.Errorf("window %q-%q: end not after start", win.Start, win.End)
		}
		for _, dayName := range win.Days {
			key := strings.ToLower(dayName)
			if len(key) > 3 {
				key = key[:3]
			}
			day, ok := weekdayNames[key]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", dayName)
			}
			cal.Windows = append(cal.Windows, domain.WorkingWindow{
				Weekday:      day,
				StartMinutes: start,
				EndMinutes:   end,
			})
		}
	}
	for _, hol := range seed.Holidays {
		holiday, err := parseHoliday(hol.Name, hol.Date)
		if err != nil {
			return nil, err
		}
		cal.Holidays = append(cal.Holidays, holiday)
	}
	return cal, nil
}

func parseClock(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM")
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour")
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute")
	}
	return hours*60 + minutes, nil
}

func parseHoliday(name, date string) (domain.Holiday, error) {
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return domain.Holiday{Name: name, Month: t.Month(), Day: t.Day(), Year: t.Year()}, nil
	}
	if t, err := time.Parse("01-02", date); err == nil {
		return domain.Holiday{Name: name, Month: t.Month(), Day: t.Day()}, nil
	}
	return domain.Holiday{}, fmt.Errorf("holiday %q: date %q not MM-DD or YYYY-MM-DD", name, date)
}

package generic

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// DAY NORMALIZATION
// =============================================================================

// DateLayout is the ISO date format used for holiday keys and storage.
const DateLayout = "2006-01-02"

// acceptedLayouts are tried in order by ParseDate.
var acceptedLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// Midnight returns the start of t's day in t's own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable millisecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// ParseDate parses a stored date string and normalizes it to midnight in loc.
// Empty or malformed input returns ok == false; callers treat that as absent.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range acceptedLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		// Timestamps carrying their own zone are moved into loc before
		// taking the calendar day.
		return Midnight(t.In(loc)), true
	}
	return time.Time{}, false
}

// DateKey formats t as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format(DateLayout) }

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MinTime returns the earlier of a and b.
func MinTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// StartOfMonth returns midnight on the first of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns midnight on the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a date excluded from working-day counts.
type Holiday struct {
	ID        string `json:"id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Name      string `json:"name"`
	Recurring bool   `json:"recurring,omitempty"` // same month/day every year
}

// UnmarshalJSON accepts either a bare date string or a holiday object.
func (h *Holiday) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '"' {
		var date string
		if err := json.Unmarshal(trimmed, &date); err != nil {
			return err
		}
		*h = Holiday{Date: date}
		return nil
	}
	type plain Holiday
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*h = Holiday(p)
	return nil
}

// HolidayCalendar answers holiday lookups for a calendar day.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is a calendar without holidays.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// HolidaySet is a HolidayCalendar keyed by ISO date string.
type HolidaySet map[string]struct{}

// NewHolidaySet indexes holidays by date key. Recurring holidays are expanded
// into every year of [fromYear, toYear]. Entries whose date does not parse are
// skipped.
func NewHolidaySet(holidays []Holiday, fromYear, toYear int) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		d, ok := ParseDate(h.Date, time.UTC)
		if !ok {
			continue
		}
		if !h.Recurring {
			set[DateKey(d)] = struct{}{}
			continue
		}
		for y := fromYear; y <= toYear; y++ {
			// Feb 29 only exists in leap years; time.Date would roll it to Mar 1.
			day := time.Date(y, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			if day.Month() != d.Month() {
				continue
			}
			set[DateKey(day)] = struct{}{}
		}
	}
	return set
}

// HolidaysFromDates builds a set from bare date strings.
func HolidaysFromDates(dates ...string) HolidaySet {
	holidays := make([]Holiday, len(dates))
	for i, d := range dates {
		holidays[i] = Holiday{Date: d}
	}
	return NewHolidaySet(holidays, 0, -1)
}

func (s HolidaySet) IsHoliday(date time.Time) bool {
	_, ok := s[DateKey(date)]
	return ok
}

// IsWorkday reports whether date is neither a weekend day nor a holiday.
func IsWorkday(date time.Time, calendar HolidayCalendar) bool {
	if IsWeekend(date) {
		return false
	}
	if calendar != nil && calendar.IsHoliday(date) {
		return false
	}
	return true
}

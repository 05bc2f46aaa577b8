package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CalendarDateLayout is the canonical string form of a CalendarDate.
const CalendarDateLayout = "2006-01-02"

// CalendarDate is a valid year/month/day triple.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the date as YYYY-MM-DD.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of the date.
func (d CalendarDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// MarshalJSON encodes the date as its canonical string.
func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON decodes a canonical date string.
func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("calendar date: %w", err)
	}
	t, err := time.Parse(CalendarDateLayout, s)
	if err != nil {
		return fmt.Errorf("calendar date: %w", err)
	}
	*d = CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
	return nil
}

// ComposeDate builds a calendar date from separate year, month and day text.
// It fails when a component is missing or non-numeric, or when the three do not
// name a real day (2021-02-29, 2020-04-31, month 13).
func ComposeDate(year, month, day string) (CalendarDate, error) {
	fail := func(reason string) (CalendarDate, error) {
		return CalendarDate{}, NewDateCompositionError(year, month, day, reason)
	}

	y, reason, ok := datePart("year", year)
	if !ok {
		return fail(reason)
	}
	m, reason, ok := datePart("month", month)
	if !ok {
		return fail(reason)
	}
	d, reason, ok := datePart("day", day)
	if !ok {
		return fail(reason)
	}

	if m < 1 || m > 12 {
		return fail("month out of range")
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 1); a changed triple means the day does not exist.
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return fail("not a calendar date")
	}

	return CalendarDate{Year: y, Month: time.Month(m), Day: d}, nil
}

// ComposeDateParts composes a date from optional parts.
func ComposeDateParts(p *DateParts) (CalendarDate, error) {
	if p == nil {
		return CalendarDate{}, NewDateCompositionError("", "", "", "date absent")
	}
	return ComposeDate(deref(p.Year), deref(p.Month), deref(p.Day))
}

func datePart(name, raw string) (int, string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, name + " missing", false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Sprintf("%s %q is not numeric", name, raw), false
	}
	return n, "", true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

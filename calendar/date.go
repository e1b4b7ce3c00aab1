/*
Package calendar provides the calendar primitives used by the timesheet engine.

PURPOSE:
  Time entries are keyed by a calendar day, not by an instant. A Date carries
  year, month and day only: no time-of-day and no time zone. Instants are
  converted to a Date exactly once, at the edge (clock reads and storage),
  using the system's reference time zone.

KEY CONCEPTS:
  - Date:   A calendar day (2025-07-04). Comparable, usable as a map key.
  - Clock:  Injected source of "now" so validators are deterministic in tests.
  - Bounds: The half-month (or weekly) bucket a Date falls into.

SEE ALSO:
  - period.go: PeriodResolver
  - clock.go:  Clock implementations
*/
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - Calendar day value type
// =============================================================================

// Date is a calendar day. The zero value is "no date".
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate builds a Date from its components. Out-of-range components
// (February 30, month 13) are rejected instead of normalized.
func NewDate(year int, month time.Month, day int) (Date, error) {
	if year < 1 || year > 9999 {
		return Date{}, fmt.Errorf("invalid year %d", year)
	}
	if month < time.January || month > time.December {
		return Date{}, fmt.Errorf("invalid month %d", month)
	}
	if day < 1 || day > DaysIn(year, month) {
		return Date{}, fmt.Errorf("invalid day %d for %d-%02d", day, year, month)
	}
	return Date{year: year, month: month, day: day}, nil
}

// MustDate is NewDate for literals known to be valid.
func MustDate(year int, month time.Month, day int) Date {
	d, err := NewDate(year, month, day)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// ParseDate parses a YYYY-MM-DD string. Year 0000 is rejected: it would
// collide with the zero Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	d, err := NewDate(t.Year(), t.Month(), t.Day())
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// Properties
func (d Date) Year() int             { return d.year }
func (d Date) Month() time.Month     { return d.month }
func (d Date) Day() int              { return d.day }
func (d Date) IsZero() bool          { return d.year == 0 }
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }
func (d Date) IsWeekend() bool       { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (d Date) IsWorkday() bool       { return !d.IsWeekend() }

// Time returns midnight UTC of d. Only storage and arithmetic use this.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// Comparison
func (d Date) Compare(other Date) int {
	switch {
	case d.year != other.year:
		return cmp(d.year, other.year)
	case d.month != other.month:
		return cmp(int(d.month), int(other.month))
	default:
		return cmp(d.day, other.day)
	}
}
func (d Date) Before(other Date) bool        { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool         { return d.Compare(other) > 0 }
func (d Date) Equal(other Date) bool         { return d == other }
func (d Date) BeforeOrEqual(other Date) bool { return d.Compare(other) <= 0 }
func (d Date) AfterOrEqual(other Date) bool  { return d.Compare(other) >= 0 }

func cmp(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n), time.UTC) }

// DaysSince returns the signed number of whole days from other to d.
// Both sides are midnights in UTC so the result is exact. Unix seconds are
// used because a time.Duration saturates after about 292 years.
func (d Date) DaysSince(other Date) int {
	return int((d.Time().Unix() - other.Time().Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// =============================================================================
// JSON
// =============================================================================

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// MONTH UTILITIES
// =============================================================================

// DaysIn returns the number of days in the given month, leap years included.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(year int, month time.Month) Date { return Date{year: year, month: month, day: 1} }
func EndOfMonth(year int, month time.Month) Date {
	return Date{year: year, month: month, day: DaysIn(year, month)}
}

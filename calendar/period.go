package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The reporting bucket a time entry belongs to
// =============================================================================

// PeriodType defines how a month is split into buckets.
type PeriodType string

const (
	PeriodBiweekly PeriodType = "biweekly" // 1-15, 16-end of month
	PeriodWeekly   PeriodType = "weekly"   // 1-7, 8-14, 15-21, 22-28, 29-end
)

// ParsePeriodType validates a configured period type. Empty means biweekly.
func ParsePeriodType(s string) (PeriodType, error) {
	switch PeriodType(s) {
	case "", PeriodBiweekly:
		return PeriodBiweekly, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	default:
		return "", fmt.Errorf("unknown period type %q", s)
	}
}

// Bounds identifies one bucket. (Year, Month, Number, Type) is its identity.
type Bounds struct {
	Year   int
	Month  time.Month
	Number int
	Type   PeriodType
	Start  Date
	End    Date
}

// ResolvePeriod returns the bucket that contains d. Pure function.
//
// Bi-weekly: day <= 15 is period 1 (1..15), otherwise period 2 (16..last day
// of the month, leap years included). Weekly buckets never cross a month
// boundary; the last one absorbs the remaining 1-3 days.
func ResolvePeriod(d Date, t PeriodType) Bounds {
	y, m := d.Year(), d.Month()
	last := DaysIn(y, m)

	if t == PeriodWeekly {
		n := (d.Day()-1)/7 + 1
		if n > 4 {
			n = 5
		}
		start := (n-1)*7 + 1
		end := start + 6
		if n == 5 || end > last {
			end = last
		}
		return Bounds{
			Year: y, Month: m, Number: n, Type: PeriodWeekly,
			Start: Date{year: y, month: m, day: start},
			End:   Date{year: y, month: m, day: end},
		}
	}

	if d.Day() <= 15 {
		return Bounds{
			Year: y, Month: m, Number: 1, Type: PeriodBiweekly,
			Start: Date{year: y, month: m, day: 1},
			End:   Date{year: y, month: m, day: 15},
		}
	}
	return Bounds{
		Year: y, Month: m, Number: 2, Type: PeriodBiweekly,
		Start: Date{year: y, month: m, day: 16},
		End:   Date{year: y, month: m, day: last},
	}
}

// Contains returns true if d is within [Start, End].
func (b Bounds) Contains(d Date) bool {
	return d.AfterOrEqual(b.Start) && d.BeforeOrEqual(b.End)
}

// Days returns all days in the bucket.
func (b Bounds) Days() []Date {
	var days []Date
	for cur := b.Start; cur.BeforeOrEqual(b.End); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

// Workdays counts Monday-Friday days in the bucket.
func (b Bounds) Workdays() int {
	n := 0
	for _, d := range b.Days() {
		if d.IsWorkday() {
			n++
		}
	}
	return n
}

// Next returns the bucket that starts the day after End.
func (b Bounds) Next() Bounds {
	return ResolvePeriod(b.End.AddDays(1), b.Type)
}

func (b Bounds) String() string {
	return fmt.Sprintf("%d-%02d/%s#%d [%s, %s]", b.Year, b.Month, b.Type, b.Number, b.Start, b.End)
}

package timesheet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/calendar"
)

var hardMaxHours = decimal.NewFromInt(24)

// =============================================================================
// ENTRY VALIDATOR - Date windows, hour bounds, daily cap
// =============================================================================

// EntryValidator applies the configurable time-entry rules. Rejections are
// returned as *ValidationError; any other error is an infrastructure failure.
type EntryValidator struct {
	env      *env
	settings *Settings
}

// DateCheck is the outcome of the date-window rule.
type DateCheck struct {
	Valid        bool
	DiffDays     int // target - today, in days
	Restrictions DateRestrictions
	Reason       *ValidationError
}

// ValidateDate applies the future/past windows relative to today in the
// reference zone. Both bounds are inclusive: exactly FutureDaysAllowed days
// ahead is accepted.
func (v *EntryValidator) ValidateDate(ctx context.Context, target calendar.Date) (DateCheck, error) {
	r, err := v.settings.DateRestrictions(ctx)
	if err != nil {
		return DateCheck{}, err
	}
	diff := target.DaysSince(v.env.today())
	check := DateCheck{Valid: true, DiffDays: diff, Restrictions: r}
	if !r.Enabled {
		return check, nil
	}
	switch {
	case diff > r.FutureDaysAllowed:
		check.Valid = false
		check.Reason = invalid(CodeDateOutsideFutureWindow, "date",
			"date %s is %d days in the future; at most %d days ahead are allowed",
			target, diff, r.FutureDaysAllowed)
	case diff < -r.PastDaysAllowed:
		check.Valid = false
		check.Reason = invalid(CodeDateOutsidePastWindow, "date",
			"date %s is %d days in the past; at most %d days back are allowed",
			target, -diff, r.PastDaysAllowed)
	}
	return check, nil
}

// DailyHoursCheck is the outcome of the daily-cap rule.
type DailyHoursCheck struct {
	CurrentHours decimal.Decimal
	NewHours     decimal.Decimal
	TotalHours   decimal.Decimal
	MaxHours     decimal.Decimal
	Valid        bool
}

// CheckDailyHours sums the user's hours on date, leaving out exclude (the
// entry being edited or merged), and adds newHours.
func (v *EntryValidator) CheckDailyHours(ctx context.Context, user UserID, date calendar.Date, newHours decimal.Decimal, exclude TimeEntryID) (DailyHoursCheck, error) {
	limits, err := v.settings.Limits(ctx)
	if err != nil {
		return DailyHoursCheck{}, err
	}
	current, err := v.env.store.SumHoursForUserAndDate(ctx, user, date, exclude)
	if err != nil {
		return DailyHoursCheck{}, fmt.Errorf("sum hours: %w", err)
	}
	total := current.Add(newHours)
	return DailyHoursCheck{
		CurrentHours: current,
		NewHours:     newHours,
		TotalHours:   total,
		MaxHours:     limits.MaxPerDay,
		Valid:        total.LessThanOrEqual(limits.MaxPerDay),
	}, nil
}

// ValidateHours bounds a single entry: at least the configured minimum, at
// most the daily cap and never more than 24.
func (v *EntryValidator) ValidateHours(ctx context.Context, hours decimal.Decimal) error {
	limits, err := v.settings.Limits(ctx)
	if err != nil {
		return err
	}
	if !hours.IsPositive() || hours.LessThan(limits.MinPerEntry) {
		return invalid(CodeHoursBelowMinimum, "hours",
			"hours must be at least %s, got %s", limits.MinPerEntry, hours)
	}
	upper := decimal.Min(limits.MaxPerDay, hardMaxHours)
	if hours.GreaterThan(upper) {
		return invalid(CodeHoursAboveMaximum, "hours",
			"hours must be at most %s, got %s", upper, hours)
	}
	return nil
}

// entryCheck describes the entry being validated.
type entryCheck struct {
	Key   EntryKey
	Hours decimal.Decimal
	// Exclude is the id whose stored hours must not count toward the daily
	// total (the entry being merged or edited).
	Exclude TimeEntryID
	// CheckDate is false when an edit leaves the date untouched and the
	// window should not be re-applied.
	CheckDate      bool
	CheckDuplicate bool
}

// validate runs the rules in order: hours, date window, duplicate, daily cap.
func (v *EntryValidator) validate(ctx context.Context, c entryCheck) error {
	err := v.runRules(ctx, c)
	if code, ok := ValidationCodeOf(err); ok {
		v.env.recorder.ValidationRejected(code)
	}
	return err
}

func (v *EntryValidator) runRules(ctx context.Context, c entryCheck) error {
	if err := v.ValidateHours(ctx, c.Hours); err != nil {
		return err
	}
	if c.CheckDate {
		dc, err := v.ValidateDate(ctx, c.Key.Date)
		if err != nil {
			return err
		}
		if !dc.Valid {
			return dc.Reason
		}
	}
	if c.CheckDuplicate {
		existing, err := v.env.store.FindTimeEntry(ctx, c.Key)
		if err != nil {
			return fmt.Errorf("duplicate lookup: %w", err)
		}
		if existing != nil {
			return invalid(CodeDuplicateEntry, "",
				"a time entry for this task on %s already exists", c.Key.Date)
		}
	}
	hc, err := v.CheckDailyHours(ctx, c.Key.UserID, c.Key.Date, c.Hours, c.Exclude)
	if err != nil {
		return err
	}
	if !hc.Valid {
		return invalid(CodeDailyCapExceeded, "hours",
			"daily limit of %s hours exceeded on %s: %s already logged, %s requested",
			hc.MaxHours, c.Key.Date, hc.CurrentHours, hc.NewHours)
	}
	return nil
}

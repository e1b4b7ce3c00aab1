package timesheet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// PERIOD RESOLVER - find-or-create the TimePeriod of a date
// =============================================================================

// PeriodResolver maps a date to its persisted TimePeriod, creating the row
// the first time. Existing rows are never modified.
type PeriodResolver struct {
	env      *env
	settings *Settings
	logger   *zap.Logger
}

// Bounds is the pure half of the resolver.
func (r *PeriodResolver) Bounds(date calendar.Date) calendar.Bounds {
	return calendar.ResolvePeriod(date, r.env.periodType)
}

// Resolve returns the TimePeriod containing date. Lookup is strict on
// (year, month, periodNumber, type); when two callers race to create the
// same bucket, the loser re-reads the winner's row.
func (r *PeriodResolver) Resolve(ctx context.Context, date calendar.Date) (*TimePeriod, error) {
	b := r.Bounds(date)
	existing, err := r.env.store.FindTimePeriod(ctx, b.Year, b.Month, b.Number, b.Type)
	if err != nil {
		return nil, fmt.Errorf("find period: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	perDay, err := r.settings.ReferenceHoursPerDay(ctx)
	if err != nil {
		return nil, err
	}
	ref := perDay.Mul(decimal.NewFromInt(int64(b.Workdays())))
	period := TimePeriod{
		ID:             TimePeriodID(r.env.newID()),
		Year:           b.Year,
		Month:          b.Month,
		PeriodNumber:   b.Number,
		Type:           b.Type,
		StartDate:      b.Start,
		EndDate:        b.End,
		ReferenceHours: &ref,
		CreatedAt:      r.env.now(),
	}
	err = r.env.store.CreateTimePeriod(ctx, period)
	if errors.Is(err, ErrDuplicatePeriod) {
		winner, ferr := r.env.store.FindTimePeriod(ctx, b.Year, b.Month, b.Number, b.Type)
		if ferr != nil {
			return nil, fmt.Errorf("find period after conflict: %w", ferr)
		}
		if winner == nil {
			return nil, fmt.Errorf("period %s reported duplicate but not found", b)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create period: %w", err)
	}
	r.logger.Info("time period created",
		zap.String("period_id", string(period.ID)), zap.Stringer("bounds", b))
	return &period, nil
}

// Today is the current calendar date in the reference zone.
func (r *PeriodResolver) Today() calendar.Date { return r.env.today() }

// EnsureAhead makes sure the period containing today and the next one exist.
// The scheduler calls this so reports show upcoming periods before any entry
// lands in them.
func (r *PeriodResolver) EnsureAhead(ctx context.Context) ([]TimePeriod, error) {
	current := r.Bounds(r.Today())
	var out []TimePeriod
	for _, b := range []calendar.Bounds{current, current.Next()} {
		p, err := r.Resolve(ctx, b.Start)
		if err != nil {
			return out, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// List returns the persisted periods of a year (all when year is 0).
func (r *PeriodResolver) List(ctx context.Context, year int) ([]TimePeriod, error) {
	return r.env.store.ListTimePeriods(ctx, year)
}

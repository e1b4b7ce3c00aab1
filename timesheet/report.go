package timesheet

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// PERIOD SUMMARY - hours logged vs reference hours
// =============================================================================

// UserPeriodTotal is one user's activity inside a period.
type UserPeriodTotal struct {
	UserID         UserID
	TotalHours     decimal.Decimal
	ApprovedHours  decimal.Decimal
	PendingHours   decimal.Decimal
	ReferenceHours decimal.Decimal
	// Balance is TotalHours - ReferenceHours; negative means under-logged.
	Balance    decimal.Decimal
	Entries    int
	DaysLogged int
}

// PeriodSummary aggregates the entries of one TimePeriod visible to the
// principal.
type PeriodSummary struct {
	Period     TimePeriod
	Users      []UserPeriodTotal
	TotalHours decimal.Decimal
}

// PeriodSummary groups the period's entries by user. Coordinators see their
// area, collaborators only themselves.
func (s *TimeEntryService) PeriodSummary(ctx context.Context, p Principal, id TimePeriodID) (*PeriodSummary, error) {
	period, err := s.env.store.GetTimePeriod(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get time period: %w", err)
	}
	if period == nil {
		return nil, notFound("time period", id)
	}

	entries, err := s.env.store.ListTimeEntries(ctx, TimeEntryFilter{
		Scope:        s.env.policy.TimeEntryScope(p),
		TimePeriodID: id,
	})
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}

	ref := decimal.Zero
	if period.ReferenceHours != nil {
		ref = *period.ReferenceHours
	}

	type acc struct {
		total UserPeriodTotal
		days  map[calendar.Date]struct{}
	}
	byUser := make(map[UserID]*acc)
	summary := &PeriodSummary{Period: *period, Users: []UserPeriodTotal{}, TotalHours: decimal.Zero}
	for _, e := range entries {
		a, ok := byUser[e.UserID]
		if !ok {
			a = &acc{
				total: UserPeriodTotal{
					UserID:         e.UserID,
					TotalHours:     decimal.Zero,
					ApprovedHours:  decimal.Zero,
					PendingHours:   decimal.Zero,
					ReferenceHours: ref,
				},
				days: make(map[calendar.Date]struct{}),
			}
			byUser[e.UserID] = a
		}
		a.total.TotalHours = a.total.TotalHours.Add(e.Hours)
		if e.IsApproved {
			a.total.ApprovedHours = a.total.ApprovedHours.Add(e.Hours)
		} else {
			a.total.PendingHours = a.total.PendingHours.Add(e.Hours)
		}
		a.total.Entries++
		a.days[e.Date] = struct{}{}
		summary.TotalHours = summary.TotalHours.Add(e.Hours)
	}

	for _, a := range byUser {
		a.total.DaysLogged = len(a.days)
		a.total.Balance = a.total.TotalHours.Sub(ref)
		summary.Users = append(summary.Users, a.total)
	}
	sort.Slice(summary.Users, func(i, j int) bool { return summary.Users[i].UserID < summary.Users[j].UserID })
	return summary, nil
}

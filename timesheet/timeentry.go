package timesheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// TIME ENTRY SERVICE
// =============================================================================

// TimeEntryService is the entry point for everything a user does with their
// logged hours. Writes go through the Reconciler and the EntryValidator.
type TimeEntryService struct {
	env        *env
	reconciler *Reconciler
	validator  *EntryValidator
	periods    *PeriodResolver
	settings   *Settings
	logger     *zap.Logger
}

// CreateOrMerge submits one entry. See Reconciler.CreateOrMerge.
func (s *TimeEntryService) CreateOrMerge(ctx context.Context, p Principal, c Candidate) (*ReconcileResult, error) {
	return s.reconciler.CreateOrMerge(ctx, p, c)
}

func (s *TimeEntryService) Get(ctx context.Context, p Principal, id TimeEntryID) (*TimeEntry, error) {
	entry, err := s.env.store.GetTimeEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get time entry: %w", err)
	}
	if entry == nil {
		return nil, notFound("time entry", id)
	}
	if !s.env.policy.CanAccessTimeEntry(p, *entry) {
		return nil, forbidden("view this time entry", "")
	}
	return entry, nil
}

// TimeEntryQuery narrows a listing. The principal's scope is always applied
// on top of it.
type TimeEntryQuery struct {
	UserID       UserID
	ProjectID    ProjectID
	TaskID       TaskID
	TimePeriodID TimePeriodID
	From         calendar.Date
	To           calendar.Date
	Approved     *bool
}

func (s *TimeEntryService) List(ctx context.Context, p Principal, q TimeEntryQuery) ([]TimeEntry, error) {
	if q.UserID != "" && !s.env.policy.CanViewUserTimeEntries(p, q.UserID) {
		return nil, forbidden("view another user's time entries", "")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, invalid(CodeInvalidDateRange, "from", "from %s is after to %s", q.From, q.To)
	}
	entries, err := s.env.store.ListTimeEntries(ctx, TimeEntryFilter{
		Scope:        s.env.policy.TimeEntryScope(p),
		UserID:       q.UserID,
		ProjectID:    q.ProjectID,
		TaskID:       q.TaskID,
		TimePeriodID: q.TimePeriodID,
		From:         q.From,
		To:           q.To,
		Approved:     q.Approved,
	})
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	return entries, nil
}

// TimeEntryUpdate is a partial edit. Only Hours and Description are
// mutable; the identity fields are accepted so a request that tries to move
// an entry is rejected instead of silently ignored.
type TimeEntryUpdate struct {
	Hours       *decimal.Decimal
	Description *string

	UserID    *UserID
	ProjectID *ProjectID
	TaskID    *TaskID
	Year      *int
	Month     *int
	Day       *int
}

// Update edits the hours and/or description of an entry. Changing hours
// re-runs the hour bounds, the date window and the daily cap with the
// entry's own stored hours left out of the day's total.
func (s *TimeEntryService) Update(ctx context.Context, p Principal, id TimeEntryID, u TimeEntryUpdate) (*TimeEntry, error) {
	entry, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanUpdateTimeEntry(p, *entry) {
		return nil, forbidden("edit this time entry", "")
	}
	if err := checkImmutable(*entry, u); err != nil {
		return nil, err
	}
	if entry.IsApproved && !s.env.policy.CanApproveTimeEntry(p, *entry) {
		return nil, invalid(CodeEntryApproved, "",
			"the time entry for %s is already approved and can no longer be changed", entry.Date)
	}

	updated := *entry
	if u.Hours != nil && !u.Hours.Equal(entry.Hours) {
		err := s.validator.validate(ctx, entryCheck{
			Key:       entry.Key(),
			Hours:     *u.Hours,
			Exclude:   entry.ID,
			CheckDate: true,
		})
		if err != nil {
			return nil, err
		}
		updated.Hours = *u.Hours
		clearApproval(&updated)
	}
	if u.Description != nil {
		updated.Description = strings.TrimSpace(*u.Description)
	}
	updated.UpdatedAt = s.env.now()

	if err := s.env.store.UpdateTimeEntry(ctx, updated); err != nil {
		return nil, fmt.Errorf("update time entry: %w", err)
	}
	return &updated, nil
}

// checkImmutable rejects any attempt to change the entry's identity. A field
// that is present but equal to the stored value is accepted.
func checkImmutable(e TimeEntry, u TimeEntryUpdate) error {
	immutable := func(field string) error {
		return invalid(CodeImmutableField, field,
			"%s of a time entry cannot be changed; delete it and log a new one", field)
	}
	switch {
	case u.UserID != nil && *u.UserID != e.UserID:
		return immutable("userId")
	case u.ProjectID != nil && *u.ProjectID != e.ProjectID:
		return immutable("projectId")
	case u.TaskID != nil && *u.TaskID != e.TaskID:
		return immutable("taskId")
	case u.Year != nil && *u.Year != e.Date.Year(),
		u.Month != nil && *u.Month != int(e.Date.Month()),
		u.Day != nil && *u.Day != e.Date.Day():
		return immutable("date")
	}
	return nil
}

func (s *TimeEntryService) Delete(ctx context.Context, p Principal, id TimeEntryID) error {
	entry, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if !s.env.policy.CanDeleteTimeEntry(p, *entry) {
		return forbidden("delete this time entry", "")
	}
	if entry.IsApproved && !s.env.policy.CanApproveTimeEntry(p, *entry) {
		return invalid(CodeEntryApproved, "",
			"the time entry for %s is already approved and can no longer be deleted", entry.Date)
	}
	if err := s.env.store.DeleteTimeEntry(ctx, id); err != nil {
		return fmt.Errorf("delete time entry: %w", err)
	}
	s.logger.Info("time entry deleted",
		zap.String("entry_id", string(id)), zap.String("by", string(p.UserID)))
	return nil
}

// Approve marks an entry approved. Coordinators approve inside their area,
// administrators anywhere. Approving twice is a no-op.
func (s *TimeEntryService) Approve(ctx context.Context, p Principal, id TimeEntryID) (*TimeEntry, error) {
	return s.setApproval(ctx, p, id, true)
}

// Unapprove reverts an approval so the owner can edit the entry again.
func (s *TimeEntryService) Unapprove(ctx context.Context, p Principal, id TimeEntryID) (*TimeEntry, error) {
	return s.setApproval(ctx, p, id, false)
}

func (s *TimeEntryService) setApproval(ctx context.Context, p Principal, id TimeEntryID, approved bool) (*TimeEntry, error) {
	entry, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanApproveTimeEntry(p, *entry) {
		return nil, forbidden("approve time entries", "coordinators approve inside their own area")
	}
	if entry.IsApproved == approved {
		return entry, nil
	}

	updated := *entry
	now := s.env.now()
	if approved {
		updated.IsApproved = true
		updated.ApprovedBy = p.UserID
		updated.ApprovedAt = &now
	} else {
		clearApproval(&updated)
	}
	updated.UpdatedAt = now
	if err := s.env.store.UpdateTimeEntry(ctx, updated); err != nil {
		return nil, fmt.Errorf("update time entry: %w", err)
	}
	s.logger.Info("time entry approval changed",
		zap.String("entry_id", string(id)),
		zap.Bool("approved", approved),
		zap.String("by", string(p.UserID)))
	return &updated, nil
}

// ValidateDate exposes the date-window rule for clients that want to check a
// date before submitting.
func (s *TimeEntryService) ValidateDate(ctx context.Context, date calendar.Date) (DateCheck, error) {
	return s.validator.ValidateDate(ctx, date)
}

// DailyHours reports what a user has logged on a day.
func (s *TimeEntryService) DailyHours(ctx context.Context, p Principal, user UserID, date calendar.Date) (DailyHoursCheck, error) {
	if user == "" {
		user = p.UserID
	}
	if !s.env.policy.CanViewUserTimeEntries(p, user) {
		return DailyHoursCheck{}, forbidden("view another user's hours", "")
	}
	return s.validator.CheckDailyHours(ctx, user, date, decimal.Zero, "")
}

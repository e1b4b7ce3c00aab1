/*
reconcile.go - TimeEntryReconciler

PURPOSE:
  Turns a submitted time entry into exactly one stored row per
  (user, project, task, date).

ALGORITHM (CreateOrMerge):
  1. Resolve the task (NotFound if absent or deleted)
  2. Target user = candidate.UserID, or the principal
  3. AccessPolicy.CanCreateTimeEntry (Forbidden on veto)
  4. Build the calendar Date from the (year, month, day) triple
  5. Look up an existing entry with the same key
       found     -> MERGE: replace hours/description, re-validate hours, the
                    date window and the daily cap with this entry's own
                    stored hours left out of the day's total
       not found -> INSERT: full validation including the duplicate check,
                    resolve/create the TimePeriod, insert tagged with it

RACE HANDLING:
  The store enforces a unique key on (user, project, task, date). If two
  submissions race past step 5, the loser's insert fails with
  ErrDuplicateEntry and falls through to the merge path against the winner's
  row. No locks, no retries.

BATCH VS INTERACTIVE:
  Interactive submission treats a duplicate as a correction (merge).
  CreateMany treats it as a skip and reports it (see bulk.go).
*/
package timesheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/calendar"
)

// ReconcileOutcome tells whether a submission created or merged an entry.
type ReconcileOutcome int

const (
	OutcomeInserted ReconcileOutcome = iota + 1
	OutcomeMerged
)

func (o ReconcileOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// Candidate is a submitted time entry. The date is given as separate
// calendar components, never as an instant.
type Candidate struct {
	UserID      UserID // empty means the principal
	ProjectID   ProjectID
	TaskID      TaskID
	Year        int
	Month       int
	Day         int
	Hours       decimal.Decimal
	Description string
}

// ReconcileResult is the stored entry and how it got there.
type ReconcileResult struct {
	Entry   TimeEntry
	Outcome ReconcileOutcome
}

// Reconciler implements CreateOrMerge.
type Reconciler struct {
	env       *env
	validator *EntryValidator
	periods   *PeriodResolver
	logger    *zap.Logger
}

// prepared is a candidate after steps 1-4.
type prepared struct {
	task      Task
	key       EntryKey
	candidate Candidate
}

func (r *Reconciler) prepare(ctx context.Context, p Principal, c Candidate) (*prepared, error) {
	task, err := r.env.store.GetTask(ctx, c.TaskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil || !task.IsActive {
		return nil, notFound("task", c.TaskID)
	}

	target := c.UserID
	if target == "" {
		target = p.UserID
	}
	if !r.env.policy.CanCreateTimeEntry(p, *task, target) {
		return nil, forbidden("log time on this task", "task is outside your scope or the entry belongs to another user")
	}
	if target != p.UserID {
		user, err := r.env.store.GetUser(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if user == nil || !user.IsActive {
			return nil, notFound("user", target)
		}
	}

	if c.ProjectID != "" && c.ProjectID != task.ProjectID {
		return nil, invalid(CodeTaskProjectMismatch, "projectId",
			"task %s does not belong to project %s", task.ID, c.ProjectID)
	}
	date, err := calendar.NewDate(c.Year, time.Month(c.Month), c.Day)
	if err != nil {
		return nil, invalid(CodeInvalidDate, "date", "%v", err)
	}
	c.Description = strings.TrimSpace(c.Description)

	return &prepared{
		task:      *task,
		key:       EntryKey{UserID: target, ProjectID: task.ProjectID, TaskID: task.ID, Date: date},
		candidate: c,
	}, nil
}

// CreateOrMerge stores c, merging into an existing entry with the same key.
func (r *Reconciler) CreateOrMerge(ctx context.Context, p Principal, c Candidate) (*ReconcileResult, error) {
	prep, err := r.prepare(ctx, p, c)
	if err != nil {
		return nil, err
	}

	existing, err := r.env.store.FindTimeEntry(ctx, prep.key)
	if err != nil {
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	}
	if existing != nil {
		return r.merge(ctx, p, *existing, prep.candidate)
	}

	entry, err := r.insert(ctx, prep)
	if isDuplicate(err) {
		// Lost the race against a concurrent submission of the same key.
		r.logger.Info("insert conflicted, merging into concurrent entry",
			zap.String("user_id", string(prep.key.UserID)),
			zap.String("task_id", string(prep.key.TaskID)),
			zap.Stringer("date", prep.key.Date))
		existing, ferr := r.env.store.FindTimeEntry(ctx, prep.key)
		if ferr != nil {
			return nil, fmt.Errorf("duplicate lookup after conflict: %w", ferr)
		}
		if existing == nil {
			return nil, err
		}
		return r.merge(ctx, p, *existing, prep.candidate)
	}
	if err != nil {
		return nil, err
	}
	r.env.recorder.TimeEntryReconciled(OutcomeInserted)
	return &ReconcileResult{Entry: *entry, Outcome: OutcomeInserted}, nil
}

// Insert stores c only if no entry with the same key exists. Used by batch
// import, where a duplicate is reported instead of merged.
func (r *Reconciler) Insert(ctx context.Context, p Principal, c Candidate) (*TimeEntry, error) {
	prep, err := r.prepare(ctx, p, c)
	if err != nil {
		return nil, err
	}
	entry, err := r.insert(ctx, prep)
	if err != nil {
		return nil, err
	}
	r.env.recorder.TimeEntryReconciled(OutcomeInserted)
	return entry, nil
}

func (r *Reconciler) insert(ctx context.Context, prep *prepared) (*TimeEntry, error) {
	c := prep.candidate
	err := r.validator.validate(ctx, entryCheck{
		Key:            prep.key,
		Hours:          c.Hours,
		CheckDate:      true,
		CheckDuplicate: true,
	})
	if err != nil {
		return nil, err
	}

	period, err := r.periods.Resolve(ctx, prep.key.Date)
	if err != nil {
		return nil, err
	}

	now := r.env.now()
	entry := TimeEntry{
		ID:           TimeEntryID(r.env.newID()),
		UserID:       prep.key.UserID,
		ProjectID:    prep.key.ProjectID,
		TaskID:       prep.key.TaskID,
		AreaID:       prep.task.AreaID,
		Date:         prep.key.Date,
		Hours:        c.Hours,
		Description:  c.Description,
		TimePeriodID: period.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.env.store.CreateTimeEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return nil, err
		}
		return nil, fmt.Errorf("create time entry: %w", err)
	}
	return &entry, nil
}

// merge applies c's hours and description to existing in place.
func (r *Reconciler) merge(ctx context.Context, p Principal, existing TimeEntry, c Candidate) (*ReconcileResult, error) {
	if existing.IsApproved && !r.env.policy.CanApproveTimeEntry(p, existing) {
		return nil, invalid(CodeEntryApproved, "",
			"the time entry for %s is already approved and can no longer be changed", existing.Date)
	}
	err := r.validator.validate(ctx, entryCheck{
		Key:       existing.Key(),
		Hours:     c.Hours,
		Exclude:   existing.ID,
		CheckDate: true,
	})
	if err != nil {
		return nil, err
	}

	updated := existing
	updated.Description = c.Description
	if !updated.Hours.Equal(c.Hours) {
		updated.Hours = c.Hours
		clearApproval(&updated)
	}
	updated.UpdatedAt = r.env.now()
	if err := r.env.store.UpdateTimeEntry(ctx, updated); err != nil {
		return nil, fmt.Errorf("update time entry: %w", err)
	}

	r.logger.Info("time entry merged",
		zap.String("entry_id", string(updated.ID)),
		zap.String("previous_hours", existing.Hours.String()),
		zap.String("hours", updated.Hours.String()))
	r.env.recorder.TimeEntryReconciled(OutcomeMerged)
	return &ReconcileResult{Entry: updated, Outcome: OutcomeMerged}, nil
}

// clearApproval drops an approval that no longer matches the hours.
func clearApproval(e *TimeEntry) {
	e.IsApproved = false
	e.ApprovedBy = ""
	e.ApprovedAt = nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, ErrDuplicateEntry) {
		return true
	}
	code, ok := ValidationCodeOf(err)
	return ok && code == CodeDuplicateEntry
}

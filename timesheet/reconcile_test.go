package timesheet_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
	"github.com/warp/timesheet-engine/timesheet/store"
)

func TestCreateOrMerge_ResubmissionMergesIntoOneEntry(t *testing.T) {
	f := newFixture(t)

	// GIVEN: alice logs 3h on 2025-07-04
	first := timesheet.Candidate{
		UserID: aliceID, ProjectID: projA, TaskID: taskA,
		Year: 2025, Month: 7, Day: 4, Hours: hours("3"), Description: "draft",
	}
	res, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, first)
	require.NoError(t, err)
	assert.Equal(t, timesheet.OutcomeInserted, res.Outcome)

	// WHEN: she submits the same keys with 5h
	second := first
	second.Hours = hours("5")
	second.Description = "final"
	res2, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, second)
	require.NoError(t, err)

	// THEN: one entry, updated in place
	assert.Equal(t, timesheet.OutcomeMerged, res2.Outcome)
	assert.Equal(t, res.Entry.ID, res2.Entry.ID)

	entries, err := f.engine.TimeEntries.List(f.ctx, alice, timesheet.TimeEntryQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Hours.Equal(hours("5")))
	assert.Equal(t, "final", entries[0].Description)
	assert.Equal(t, calendar.MustDate(2025, time.July, 4), entries[0].Date)
}

func TestCreateOrMerge_MergeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := candidate(taskA, 0, "4")

	for i := 0; i < 3; i++ {
		_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, c)
		require.NoError(t, err)
	}

	entries, err := f.engine.TimeEntries.List(f.ctx, alice, timesheet.TimeEntryQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Hours.Equal(hours("4")))
}

func TestCreateOrMerge_DailyCapRejectsAndLeavesEntriesUntouched(t *testing.T) {
	f := newFixture(t)

	// GIVEN: 22h already logged for alice on the day
	_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, -6, "12"))
	require.NoError(t, err)
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA2, -6, "10"))
	require.NoError(t, err)

	// WHEN: 3h more on another task
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskGeneralA, -6, "3"))

	// THEN
	requireCode(t, err, timesheet.CodeDailyCapExceeded)
	entries, err := f.engine.TimeEntries.List(f.ctx, alice, timesheet.TimeEntryQuery{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	check, err := f.engine.TimeEntries.DailyHours(f.ctx, alice, "", candidateDate(-6))
	require.NoError(t, err)
	assert.True(t, check.CurrentHours.Equal(hours("22")))
}

func TestCreateOrMerge_MergeExcludesOwnHoursFromCap(t *testing.T) {
	f := newFixture(t)

	// GIVEN: 20h on taskA and 2h on taskA2
	_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "20"))
	require.NoError(t, err)
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA2, 0, "2"))
	require.NoError(t, err)

	// WHEN: correcting taskA to 22h (22 + 2 = 24, at the cap)
	res, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "22"))
	require.NoError(t, err)
	assert.Equal(t, timesheet.OutcomeMerged, res.Outcome)

	// THEN: one more quarter hour anywhere breaks it
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "22.25"))
	requireCode(t, err, timesheet.CodeDailyCapExceeded)
}

func TestCreateOrMerge_Access(t *testing.T) {
	f := newFixture(t)

	// Coordinator of area A on a task of area B.
	_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, coordA, candidate(taskB, 0, "1"))
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	// Collaborator outside the task's area.
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, bob, candidate(taskA, 0, "1"))
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	// Collaborator for someone else.
	c := candidate(taskA, 0, "1")
	c.UserID = coordAID
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, c)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	// Collaborator on a task assigned to them in another area.
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskBAlice, 0, "1"))
	assert.NoError(t, err)

	// Coordinator on behalf of an area member.
	c = candidate(taskA, 0, "2")
	c.UserID = aliceID
	res, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, coordA, c)
	require.NoError(t, err)
	assert.Equal(t, aliceID, res.Entry.UserID)
	assert.Equal(t, areaA, res.Entry.AreaID)
}

func TestCreateOrMerge_InputErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate("missing", 0, "1"))
	assert.True(t, timesheet.IsNotFound(err))

	c := candidate(taskA, 0, "1")
	c.Month, c.Day = 2, 30
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, c)
	requireCode(t, err, timesheet.CodeInvalidDate)

	c = candidate(taskA, 0, "1")
	c.ProjectID = projB
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, c)
	requireCode(t, err, timesheet.CodeTaskProjectMismatch)

	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "0.1"))
	requireCode(t, err, timesheet.CodeHoursBelowMinimum)

	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "-2"))
	requireCode(t, err, timesheet.CodeHoursBelowMinimum)

	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "25"))
	requireCode(t, err, timesheet.CodeHoursAboveMaximum)
}

func TestCreateOrMerge_DateWindowBoundaries(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		offset int
		code   timesheet.ValidationCode
	}{
		{7, ""},
		{8, timesheet.CodeDateOutsideFutureWindow},
		{-30, ""},
		{-31, timesheet.CodeDateOutsidePastWindow},
	}
	for _, tt := range tests {
		_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, tt.offset, "1"))
		if tt.code == "" {
			assert.NoError(t, err, "offset %d", tt.offset)
		} else {
			requireCode(t, err, tt.code)
		}
	}

	// Disabling the restriction lifts both windows.
	_, err := f.engine.Settings.Set(f.ctx, admin, timesheet.KeyDateRestrictionsEnabled, "false", "")
	require.NoError(t, err)
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 90, "1"))
	assert.NoError(t, err)
}

func TestCreateOrMerge_AssignsTimePeriod(t *testing.T) {
	f := newFixture(t)

	// 2025-06-20 falls into the second half of June.
	res, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, -20, "8"))
	require.NoError(t, err)

	period, err := f.store.GetTimePeriod(f.ctx, res.Entry.TimePeriodID)
	require.NoError(t, err)
	require.NotNil(t, period)
	assert.Equal(t, time.June, period.Month)
	assert.Equal(t, 2, period.PeriodNumber)
	assert.Equal(t, calendar.PeriodBiweekly, period.Type)
	assert.Equal(t, calendar.MustDate(2025, time.June, 16), period.StartDate)
	assert.Equal(t, calendar.MustDate(2025, time.June, 30), period.EndDate)
	// 11 weekdays between the 16th and the 30th.
	require.NotNil(t, period.ReferenceHours)
	assert.True(t, period.ReferenceHours.Equal(hours("88")), period.ReferenceHours.String())

	// A second entry in the same half reuses the row.
	res2, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA2, -19, "8"))
	require.NoError(t, err)
	assert.Equal(t, res.Entry.TimePeriodID, res2.Entry.TimePeriodID)

	// Today's entry lands in the first half of July.
	res3, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "8"))
	require.NoError(t, err)
	assert.NotEqual(t, res.Entry.TimePeriodID, res3.Entry.TimePeriodID)
}

func TestCreateOrMerge_ApprovedEntry(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "4"))
	require.NoError(t, err)
	_, err = f.engine.TimeEntries.Approve(f.ctx, coordA, res.Entry.ID)
	require.NoError(t, err)

	// The owner can no longer correct it.
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "5"))
	requireCode(t, err, timesheet.CodeEntryApproved)

	// The approver can, and the approval is dropped with the old hours.
	c := candidate(taskA, 0, "5")
	c.UserID = aliceID
	merged, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, coordA, c)
	require.NoError(t, err)
	assert.False(t, merged.Entry.IsApproved)
	assert.Nil(t, merged.Entry.ApprovedAt)
}

// racyStore hides existing entries from the first n lookups, the way a
// concurrent submission that commits between check and insert would.
type racyStore struct {
	*store.Memory
	hide atomic.Int32
}

func (r *racyStore) FindTimeEntry(ctx context.Context, key timesheet.EntryKey) (*timesheet.TimeEntry, error) {
	if r.hide.Add(-1) >= 0 {
		return nil, nil
	}
	return r.Memory.FindTimeEntry(ctx, key)
}

func TestCreateOrMerge_LostRaceFallsThroughToMerge(t *testing.T) {
	// hide=1: the reconciler's lookup misses, the validator's duplicate
	// check sees the row. hide=2: both miss and the store's unique key
	// rejects the insert.
	for _, hide := range []int32{1, 2} {
		var racy *racyStore
		f := newFixture(t, withStoreWrapper(func(m *store.Memory) timesheet.Store {
			racy = &racyStore{Memory: m}
			return racy
		}))

		first, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "3"))
		require.NoError(t, err)

		racy.hide.Store(hide)
		res, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "6"))
		require.NoError(t, err, "hide=%d", hide)
		assert.Equal(t, timesheet.OutcomeMerged, res.Outcome)
		assert.Equal(t, first.Entry.ID, res.Entry.ID)
		assert.True(t, res.Entry.Hours.Equal(hours("6")))
	}
}

type failingStore struct {
	*store.Memory
}

func (failingStore) SumHoursForUserAndDate(context.Context, timesheet.UserID, calendar.Date, timesheet.TimeEntryID) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("disk on fire")
}

func TestCreateOrMerge_StoreFailureIsNotAClientError(t *testing.T) {
	f := newFixture(t, withStoreWrapper(func(m *store.Memory) timesheet.Store {
		return failingStore{Memory: m}
	}))

	_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "3"))
	require.Error(t, err)
	assert.False(t, timesheet.IsClientError(err))
	assert.Contains(t, err.Error(), "disk on fire")
}

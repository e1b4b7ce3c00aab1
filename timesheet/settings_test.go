package timesheet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
	"github.com/warp/timesheet-engine/timesheet/store"
)

func TestSettings_Defaults(t *testing.T) {
	f := newFixture(t)

	r, err := f.engine.Settings.DateRestrictions(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, timesheet.DateRestrictions{Enabled: true, FutureDaysAllowed: 7, PastDaysAllowed: 30}, r)

	limits, err := f.engine.Settings.Limits(f.ctx)
	require.NoError(t, err)
	assert.True(t, limits.MaxPerDay.Equal(hours("24")))
	assert.True(t, limits.MinPerEntry.Equal(hours("0.25")))
}

func TestSettings_InvalidStoredValueFallsBackToDefault(t *testing.T) {
	f := newFixture(t)

	// GIVEN: a value written behind the engine's back
	require.NoError(t, f.store.SaveConfig(f.ctx, timesheet.SystemConfig{Key: timesheet.KeyFutureDays, Value: "soon"}))
	require.NoError(t, f.store.SaveConfig(f.ctx, timesheet.SystemConfig{Key: timesheet.KeyMaxHoursPerDay, Value: "30"}))

	// THEN: the defaults apply
	r, err := f.engine.Settings.DateRestrictions(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, r.FutureDaysAllowed)
	limits, err := f.engine.Settings.Limits(f.ctx)
	require.NoError(t, err)
	assert.True(t, limits.MaxPerDay.Equal(hours("24")))
}

func TestSettings_SetInvalidatesTheCache(t *testing.T) {
	f := newFixture(t)

	// Prime the cache with the default window.
	_, err := f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 10, "1"))
	requireCode(t, err, timesheet.CodeDateOutsideFutureWindow)

	_, err = f.engine.Settings.Set(f.ctx, admin, timesheet.KeyFutureDays, "10", "")
	require.NoError(t, err)

	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 10, "1"))
	assert.NoError(t, err)

	// Lowering the daily cap applies to the next submission.
	_, err = f.engine.Settings.Set(f.ctx, admin, timesheet.KeyMaxHoursPerDay, "8", "")
	require.NoError(t, err)
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA, 0, "9"))
	requireCode(t, err, timesheet.CodeHoursAboveMaximum)
}

func TestSettings_SetIsAdminOnlyAndValidated(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Settings.Set(f.ctx, coordA, timesheet.KeyPastDays, "60", "")
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Settings.List(f.ctx, alice)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	_, err = f.engine.Settings.Set(f.ctx, admin, timesheet.KeyPastDays, "-1", "")
	requireCode(t, err, timesheet.CodeInvalidInput)
	_, err = f.engine.Settings.Set(f.ctx, admin, timesheet.KeyMinHours, "0", "")
	requireCode(t, err, timesheet.CodeInvalidInput)
	_, err = f.engine.Settings.Set(f.ctx, admin, timesheet.KeyDateRestrictionsEnabled, "maybe", "")
	requireCode(t, err, timesheet.CodeInvalidInput)

	row, err := f.engine.Settings.Set(f.ctx, admin, timesheet.KeyPastDays, "60", "")
	require.NoError(t, err)
	assert.Equal(t, adminID, row.CreatedBy)
	assert.NotEmpty(t, row.Description)

	list, err := f.engine.Settings.List(f.ctx, admin)
	require.NoError(t, err)
	byKey := map[string]timesheet.Setting{}
	for _, s := range list {
		byKey[s.Key] = s
	}
	assert.Equal(t, "60", byKey[timesheet.KeyPastDays].Value)
	assert.False(t, byKey[timesheet.KeyPastDays].IsDefault)
	assert.Equal(t, "7", byKey[timesheet.KeyFutureDays].Value)
	assert.True(t, byKey[timesheet.KeyFutureDays].IsDefault)
}

func TestValidateDate_ReportsDiff(t *testing.T) {
	f := newFixture(t)

	check, err := f.engine.Validator.ValidateDate(f.ctx, calendar.MustDate(2025, time.July, 17))
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.Equal(t, 7, check.DiffDays)

	check, err = f.engine.Validator.ValidateDate(f.ctx, calendar.MustDate(2025, time.June, 9))
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, -31, check.DiffDays)
	require.NotNil(t, check.Reason)
	assert.Equal(t, timesheet.CodeDateOutsidePastWindow, check.Reason.Code)
}

// The reference zone decides what "today" is: at 23:30 in Bogota on July
// 10th it is already July 11th in UTC.
func TestValidateDate_UsesReferenceZone(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)
	late := time.Date(2025, time.July, 10, 23, 30, 0, 0, bogota)

	f := newFixture(t, func(c *fixtureConfig) {
		c.opts.Location = bogota
		c.opts.Clock = calendar.FixedClock{At: late}
	})
	check, err := f.engine.Validator.ValidateDate(f.ctx, calendar.MustDate(2025, time.July, 17))
	require.NoError(t, err)
	assert.Equal(t, 7, check.DiffDays)
}

// slowConfigStore runs duringRead after the source has been read and before
// the value is handed back, standing in for a write from another request.
type slowConfigStore struct {
	*store.Memory
	reads      map[string]int
	duringRead func()
}

func (s *slowConfigStore) GetConfig(ctx context.Context, key string) (*timesheet.SystemConfig, error) {
	s.reads[key]++
	row, err := s.Memory.GetConfig(ctx, key)
	if hook := s.duringRead; hook != nil {
		s.duringRead = nil
		hook()
	}
	return row, err
}

func TestSettings_ReadRacingAWriteDoesNotCacheTheOldValue(t *testing.T) {
	tests := []struct {
		name            string
		writeDuringRead bool
		wantFirst       string
		wantSecond      string
		wantReads       int
	}{
		{"no concurrent write caches the value", false, "7", "7", 1},
		{"concurrent write leaves the cache empty", true, "7", "10", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var src *slowConfigStore
			f := newFixture(t, withStoreWrapper(func(m *store.Memory) timesheet.Store {
				src = &slowConfigStore{Memory: m, reads: map[string]int{}}
				return src
			}))

			// GIVEN: an administrator write that lands while a read is in flight
			if tt.writeDuringRead {
				src.duringRead = func() {
					_, err := f.engine.Settings.Set(f.ctx, admin, timesheet.KeyFutureDays, "10", "")
					require.NoError(t, err)
				}
			}

			// WHEN: the setting is read twice
			first, err := f.engine.Settings.Value(f.ctx, timesheet.KeyFutureDays, "7")
			require.NoError(t, err)
			second, err := f.engine.Settings.Value(f.ctx, timesheet.KeyFutureDays, "7")
			require.NoError(t, err)

			// THEN: the second read sees the write and only clean reads are cached
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantSecond, second)
			assert.Equal(t, tt.wantReads, src.reads[timesheet.KeyFutureDays])
		})
	}
}

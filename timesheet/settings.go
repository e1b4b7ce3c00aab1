package timesheet

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/cache"
)

// =============================================================================
// SYSTEM CONFIG KEYS
// =============================================================================

const (
	KeyFutureDays              = "TIME_ENTRY_FUTURE_DAYS"
	KeyPastDays                = "TIME_ENTRY_PAST_DAYS"
	KeyDateRestrictionsEnabled = "TIME_ENTRY_DATE_RESTRICTIONS_ENABLED"
	KeyMaxHoursPerDay          = "TIME_ENTRY_MAX_HOURS_PER_DAY"
	KeyMinHours                = "TIME_ENTRY_MIN_HOURS"
	KeyReferenceHoursPerDay    = "TIME_PERIOD_REFERENCE_HOURS_PER_DAY"
)

type settingDef struct {
	Default     string
	Description string
	Validate    func(string) error
}

var knownSettings = map[string]settingDef{
	KeyFutureDays: {
		Default:     "7",
		Description: "Days ahead of today a time entry may be dated",
		Validate:    nonNegativeInt,
	},
	KeyPastDays: {
		Default:     "30",
		Description: "Days before today a time entry may be dated",
		Validate:    nonNegativeInt,
	},
	KeyDateRestrictionsEnabled: {
		Default:     "true",
		Description: "Whether the future/past date windows are enforced",
		Validate:    func(v string) error { _, err := strconv.ParseBool(v); return err },
	},
	KeyMaxHoursPerDay: {
		Default:     "24",
		Description: "Maximum hours a user may log on one day",
		Validate:    hoursInRange,
	},
	KeyMinHours: {
		Default:     "0.25",
		Description: "Minimum hours of a single time entry",
		Validate:    hoursInRange,
	},
	KeyReferenceHoursPerDay: {
		Default:     "8",
		Description: "Expected hours per workday, used for period reference hours",
		Validate:    hoursInRange,
	},
}

func nonNegativeInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func hoursInRange(v string) error {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return err
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(24)) {
		return fmt.Errorf("must be in (0, 24]")
	}
	return nil
}

// =============================================================================
// SETTINGS - SystemConfigStore
// =============================================================================

// DateRestrictions is the date window applied to new and edited entries.
type DateRestrictions struct {
	Enabled           bool
	FutureDaysAllowed int
	PastDaysAllowed   int
}

// HourLimits bounds individual entries and daily totals.
type HourLimits struct {
	MaxPerDay   decimal.Decimal
	MinPerEntry decimal.Decimal
}

// Settings reads tunables from the SystemConfig table through a cache.
// Values that are missing or fail to parse fall back to documented defaults.
type Settings struct {
	source ConfigSource
	cache  cache.Cache
	env    *env

	// gen counts writes. A read only fills the cache when no write landed
	// between its source read and the fill; mu orders fills with invalidations.
	mu  sync.Mutex
	gen uint64
}

// DefaultSettingsCacheTTL bounds how long another instance's write can stay
// invisible when no shared cache is configured.
const DefaultSettingsCacheTTL = time.Minute

func newSettings(e *env, source ConfigSource, c cache.Cache) *Settings {
	if c == nil {
		c = cache.NewMemory(DefaultSettingsCacheTTL)
	}
	return &Settings{source: source, cache: c, env: e}
}

// Value returns the raw value of key, or def when unset.
func (s *Settings) Value(ctx context.Context, key, def string) (string, error) {
	if v, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return v, nil
	} else if err != nil {
		s.env.logger.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	row, err := s.source.GetConfig(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read config %s: %w", key, err)
	}
	v := def
	if row != nil {
		v = row.Value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// A write raced this read; the value may predate it.
		return v, nil
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.env.logger.Warn("settings cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func (s *Settings) intValue(ctx context.Context, key string) (int, error) {
	def := knownSettings[key].Default
	raw, err := s.Value(ctx, key, def)
	if err != nil {
		return 0, err
	}
	n, perr := strconv.Atoi(strings.TrimSpace(raw))
	if perr != nil || n < 0 {
		s.env.logger.Warn("invalid config value, using default",
			zap.String("key", key), zap.String("value", raw), zap.String("default", def))
		n, _ = strconv.Atoi(def)
	}
	return n, nil
}

func (s *Settings) boolValue(ctx context.Context, key string) (bool, error) {
	def := knownSettings[key].Default
	raw, err := s.Value(ctx, key, def)
	if err != nil {
		return false, err
	}
	b, perr := strconv.ParseBool(strings.TrimSpace(raw))
	if perr != nil {
		s.env.logger.Warn("invalid config value, using default",
			zap.String("key", key), zap.String("value", raw), zap.String("default", def))
		b, _ = strconv.ParseBool(def)
	}
	return b, nil
}

func (s *Settings) hoursValue(ctx context.Context, key string) (decimal.Decimal, error) {
	def := knownSettings[key].Default
	raw, err := s.Value(ctx, key, def)
	if err != nil {
		return decimal.Zero, err
	}
	if hoursInRange(strings.TrimSpace(raw)) != nil {
		s.env.logger.Warn("invalid config value, using default",
			zap.String("key", key), zap.String("value", raw), zap.String("default", def))
		raw = def
	}
	return decimal.RequireFromString(strings.TrimSpace(raw)), nil
}

// DateRestrictions returns {enabled, futureDaysAllowed, pastDaysAllowed}.
func (s *Settings) DateRestrictions(ctx context.Context) (DateRestrictions, error) {
	enabled, err := s.boolValue(ctx, KeyDateRestrictionsEnabled)
	if err != nil {
		return DateRestrictions{}, err
	}
	future, err := s.intValue(ctx, KeyFutureDays)
	if err != nil {
		return DateRestrictions{}, err
	}
	past, err := s.intValue(ctx, KeyPastDays)
	if err != nil {
		return DateRestrictions{}, err
	}
	return DateRestrictions{Enabled: enabled, FutureDaysAllowed: future, PastDaysAllowed: past}, nil
}

// Limits returns the hour bounds.
func (s *Settings) Limits(ctx context.Context) (HourLimits, error) {
	maxPerDay, err := s.hoursValue(ctx, KeyMaxHoursPerDay)
	if err != nil {
		return HourLimits{}, err
	}
	minPerEntry, err := s.hoursValue(ctx, KeyMinHours)
	if err != nil {
		return HourLimits{}, err
	}
	return HourLimits{MaxPerDay: maxPerDay, MinPerEntry: minPerEntry}, nil
}

// ReferenceHoursPerDay returns the expected hours of one workday.
func (s *Settings) ReferenceHoursPerDay(ctx context.Context) (decimal.Decimal, error) {
	return s.hoursValue(ctx, KeyReferenceHoursPerDay)
}

// Setting is one row of the settings listing, with its effective value.
type Setting struct {
	Key         string
	Value       string
	Default     string
	Description string
	IsDefault   bool
	UpdatedBy   UserID
}

// List returns every known key with its effective value, plus any extra
// keys stored in the table, sorted by key.
func (s *Settings) List(ctx context.Context, p Principal) ([]Setting, error) {
	if !s.env.policy.CanManageSettings(p) {
		return nil, forbidden("list system configuration", "administrators only")
	}
	rows, err := s.source.ListConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	byKey := make(map[string]Setting, len(knownSettings)+len(rows))
	for key, def := range knownSettings {
		byKey[key] = Setting{Key: key, Value: def.Default, Default: def.Default, Description: def.Description, IsDefault: true}
	}
	for _, r := range rows {
		st := byKey[r.Key]
		st.Key, st.Value, st.IsDefault, st.UpdatedBy = r.Key, r.Value, false, r.CreatedBy
		if r.Description != "" {
			st.Description = r.Description
		}
		byKey[r.Key] = st
	}
	out := make([]Setting, 0, len(byKey))
	for _, st := range byKey {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Set writes a value and invalidates its cache entry. Administrators only.
// Known keys are validated; unknown keys are stored as-is.
func (s *Settings) Set(ctx context.Context, p Principal, key, value, description string) (*SystemConfig, error) {
	if !s.env.policy.CanManageSettings(p) {
		return nil, forbidden("change system configuration", "administrators only")
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return nil, invalid(CodeInvalidInput, "key", "config key is required")
	}
	if def, ok := knownSettings[key]; ok {
		if err := def.Validate(value); err != nil {
			return nil, invalid(CodeInvalidInput, "value", "invalid value %q for %s: %v", value, key, err)
		}
		if description == "" {
			description = def.Description
		}
	}

	row := SystemConfig{
		Key:         key,
		Value:       value,
		Description: description,
		CreatedBy:   p.UserID,
		UpdatedAt:   s.env.clock.Now().UTC(),
	}
	if err := s.source.SaveConfig(ctx, row); err != nil {
		return nil, fmt.Errorf("save config %s: %w", key, err)
	}
	s.invalidate(ctx, key)
	s.env.logger.Info("system config updated",
		zap.String("key", key), zap.String("value", value), zap.String("by", string(p.UserID)))
	return &row, nil
}

func (s *Settings) invalidate(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if err := s.cache.Delete(ctx, key); err != nil {
		s.env.logger.Warn("settings cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

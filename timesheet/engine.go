package timesheet

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/cache"
	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// ENGINE - Explicitly constructed service graph
// =============================================================================

// Recorder receives reconciliation outcomes. The metrics package implements
// it; a nil Recorder is a no-op.
type Recorder interface {
	TimeEntryReconciled(outcome ReconcileOutcome)
	ValidationRejected(code ValidationCode)
}

type nopRecorder struct{}

func (nopRecorder) TimeEntryReconciled(ReconcileOutcome) {}
func (nopRecorder) ValidationRejected(ValidationCode)    {}

// Options configures New. Zero values select defaults.
type Options struct {
	Policy     Policy
	PeriodType calendar.PeriodType
	// Location is the reference time zone used to turn "now" into today's
	// calendar date. Defaults to UTC.
	Location *time.Location
	Clock    calendar.Clock
	Cache    cache.Cache
	Logger   *zap.Logger
	Recorder Recorder
	NewID    func() string
}

// env is shared by every service of one Engine.
type env struct {
	store      Store
	policy     Policy
	periodType calendar.PeriodType
	location   *time.Location
	clock      calendar.Clock
	logger     *zap.Logger
	recorder   Recorder
	newID      func() string
}

func (e *env) today() calendar.Date { return calendar.Today(e.clock, e.location) }
func (e *env) now() time.Time       { return e.clock.Now().UTC() }

// Engine bundles the services built over one Store.
type Engine struct {
	Policy      Policy
	Settings    *Settings
	Validator   *EntryValidator
	Periods     *PeriodResolver
	Reconciler  *Reconciler
	Projects    *ProjectService
	Tasks       *TaskService
	TimeEntries *TimeEntryService
	Directory   *DirectoryService
}

// New wires the engine.
func New(store Store, opts Options) *Engine {
	e := &env{
		store:      store,
		policy:     opts.Policy,
		periodType: opts.PeriodType,
		location:   opts.Location,
		clock:      opts.Clock,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		newID:      opts.NewID,
	}
	if e.policy.ProjectVisibility == "" {
		e.policy = DefaultPolicy()
	}
	if e.periodType == "" {
		e.periodType = calendar.PeriodBiweekly
	}
	if e.location == nil {
		e.location = time.UTC
	}
	if e.clock == nil {
		e.clock = calendar.SystemClock{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	settings := newSettings(e, store, opts.Cache)
	validator := &EntryValidator{env: e, settings: settings}
	periods := &PeriodResolver{env: e, settings: settings, logger: e.logger.Named("periods")}
	reconciler := &Reconciler{env: e, validator: validator, periods: periods, logger: e.logger.Named("reconciler")}

	return &Engine{
		Policy:      e.policy,
		Settings:    settings,
		Validator:   validator,
		Periods:     periods,
		Reconciler:  reconciler,
		Projects:    &ProjectService{env: e, logger: e.logger.Named("projects")},
		Tasks:       &TaskService{env: e, logger: e.logger.Named("tasks")},
		TimeEntries: &TimeEntryService{env: e, reconciler: reconciler, validator: validator, periods: periods, settings: settings, logger: e.logger.Named("timeentry")},
		Directory:   &DirectoryService{env: e, logger: e.logger.Named("directory")},
	}
}

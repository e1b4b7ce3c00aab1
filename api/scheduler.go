/*
scheduler.go - Automated time period scheduler

PURPOSE:
  Periodically makes sure the TimePeriod rows for the current and the next
  bucket exist, so reports and period listings never wait on the first entry
  of a period to create it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Idempotent: PeriodResolver.EnsureAhead find-or-creates
  - Each run is reported to an optional RunRecorder (Prometheus)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPeriodScheduler(engine.Periods, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: EnsureTimePeriods endpoint (manual run)
  - timesheet/period.go: PeriodResolver
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/timesheet"
)

// PeriodEnsurer is the part of the PeriodResolver the scheduler drives.
type PeriodEnsurer interface {
	EnsureAhead(ctx context.Context) ([]timesheet.TimePeriod, error)
}

// RunRecorder observes scheduler runs.
type RunRecorder interface {
	SchedulerRun(at time.Time, err error)
}

// PeriodScheduler keeps upcoming time periods materialized.
type PeriodScheduler struct {
	Periods       PeriodEnsurer
	Recorder      RunRecorder
	CheckInterval time.Duration
	Enabled       bool
	// RunTimeout bounds a single run.
	RunTimeout time.Duration

	logger *zap.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPeriodScheduler creates a new scheduler.
func NewPeriodScheduler(periods PeriodEnsurer, logger *zap.Logger) *PeriodScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodScheduler{
		Periods:       periods,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		RunTimeout:    30 * time.Second,
		logger:        logger.Named("scheduler"),
		now:           time.Now,
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (ps *PeriodScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.logger.Info("disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run(ps.ticker, ps.stop)

	ps.logger.Info("started", zap.Duration("interval", ps.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (ps *PeriodScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker == nil {
		return
	}
	ps.ticker.Stop()
	close(ps.stop)
	ps.wg.Wait()
	ps.ticker = nil
	ps.logger.Info("stopped")
}

// RunNow performs one run synchronously.
func (ps *PeriodScheduler) RunNow(ctx context.Context) ([]timesheet.TimePeriod, error) {
	if ps.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ps.RunTimeout)
		defer cancel()
	}

	periods, err := ps.Periods.EnsureAhead(ctx)
	if ps.Recorder != nil {
		ps.Recorder.SchedulerRun(ps.now(), err)
	}
	if err != nil {
		ps.logger.Error("ensure periods failed", zap.Error(err))
		return nil, err
	}
	ids := make([]string, 0, len(periods))
	for _, p := range periods {
		ids = append(ids, string(p.ID))
	}
	ps.logger.Debug("periods ensured", zap.Strings("ids", ids))
	return periods, nil
}

func (ps *PeriodScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			ps.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

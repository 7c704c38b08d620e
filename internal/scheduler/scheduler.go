// Package scheduler fires rule executions at their scheduled wall-clock
// times.
//
// A ticker loop scans for due schedule rows and claims each with a
// compare-and-set before running it, so concurrent schedulers on the same
// database never double-fire a row. Failures mark the individual schedule
// Failed and the loop carries on.
package scheduler

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brmkit/brm/internal/executor"
	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// Defaults for the ticker loop.
const (
	DefaultInterval    = 60 * time.Second
	DefaultParallelism = 1
)

// Config tunes the scheduler loop. Zero values take the defaults.
type Config struct {
	// Interval between due-schedule scans.
	Interval time.Duration
	// Parallelism bounds concurrent rule executions within one tick.
	Parallelism int
	Logger      *log.Logger
	// Now supplies the clock; tests inject a fixed one.
	Now func() time.Time
}

// Scheduler runs the due-schedule loop against a store and an executor.
type Scheduler struct {
	store       storage.Store
	exec        *executor.Executor
	logger      *log.Logger
	interval    time.Duration
	parallelism int
	now         func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped Scheduler; call Start to begin ticking.
func New(store storage.Store, exec *executor.Executor, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:       store,
		exec:        exec,
		logger:      cfg.Logger,
		interval:    cfg.Interval,
		parallelism: cfg.Parallelism,
		now:         cfg.Now,
	}
}

// Start launches the ticker loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Printf("scheduler tick: %v", err)
			}
		}
	}
}

// Tick scans for due schedules and runs each claimed one. The returned error
// covers the scan only; per-schedule outcomes are recorded on the rows.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.store.DueSchedules(ctx, s.now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, sch := range due {
		g.Go(func() error {
			s.runOne(gctx, sch)
			return nil
		})
	}
	return g.Wait()
}

// runOne claims the schedule and executes its rule. Claiming flips the row
// to Executed up front; a failed run downgrades it to Failed afterward.
func (s *Scheduler) runOne(ctx context.Context, sch *types.Schedule) {
	claimed, err := s.store.ClaimSchedule(ctx, sch.ID, types.ScheduleExecuted)
	if err != nil {
		s.logger.Printf("schedule %d: claim: %v", sch.ID, err)
		return
	}
	if !claimed {
		return
	}

	opts := executor.Options{SkipValidations: !sch.RunDataValidations}
	res, err := s.exec.Execute(ctx, []int64{sch.RuleID}, opts)
	if err != nil {
		s.markFailed(ctx, sch, err)
		return
	}
	if !res.DidExecute(sch.RuleID) {
		cause := executor.ErrExecutionFailed
		if len(res.ValidationFailures) > 0 {
			cause = executor.ErrValidationFailed
		}
		s.markFailed(ctx, sch, cause)
		return
	}
	s.logger.Printf("schedule %d: rule %d executed", sch.ID, sch.RuleID)
}

func (s *Scheduler) markFailed(ctx context.Context, sch *types.Schedule, cause error) {
	s.logger.Printf("schedule %d: rule %d: %v", sch.ID, sch.RuleID, cause)
	if err := s.store.SetScheduleStatus(ctx, sch.ID, types.ScheduleFailed); err != nil {
		s.logger.Printf("schedule %d: set status: %v", sch.ID, err)
	}
}

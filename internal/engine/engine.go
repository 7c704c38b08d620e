// Package engine wires the rule store, analyzer, lock manager, approval
// state machine, lifecycle service, executor, validation runner and
// scheduler into one value.
//
// Construction takes explicit dependencies; there is no package-level state.
// Subsystems are reachable through accessors so callers (CLI, daemon, the
// public facade) never re-wire them.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/brmkit/brm/internal/approval"
	"github.com/brmkit/brm/internal/executor"
	"github.com/brmkit/brm/internal/lifecycle"
	"github.com/brmkit/brm/internal/locks"
	"github.com/brmkit/brm/internal/notify"
	"github.com/brmkit/brm/internal/scheduler"
	"github.com/brmkit/brm/internal/sqlanalyzer"
	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/telemetry"
	"github.com/brmkit/brm/internal/validation"
)

// Config carries the tunables the engine forwards to its subsystems. Zero
// values take each subsystem's default.
type Config struct {
	LockTTL              time.Duration
	ApprovalStages       []string
	FinalApprover        string
	SchedulerInterval    time.Duration
	SchedulerParallelism int
	Logger               *log.Logger
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithAnalyzer substitutes the SQL analyzer used on rule create/update.
func WithAnalyzer(a sqlanalyzer.Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithNotifier substitutes the approver notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock substitutes the scheduler's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// Engine is the assembled rule-management core.
type Engine struct {
	store  storage.Store
	target *sql.DB
	logger *log.Logger

	analyzer sqlanalyzer.Analyzer
	notifier notify.Notifier
	clock    func() time.Time

	locks       *locks.Manager
	approvals   *approval.Manager
	lifecycle   *lifecycle.Service
	validations *validation.Runner
	executor    *executor.Executor
	scheduler   *scheduler.Scheduler
}

// New assembles an engine over an open metadata store and target database
// handle. The store is wrapped with OTel instrumentation when telemetry is
// enabled.
func New(store storage.Store, target *sql.DB, cfg Config, opts ...Option) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	e := &Engine{
		store:  telemetry.WrapStore(store),
		target: target,
		logger: cfg.Logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.analyzer == nil {
		e.analyzer = sqlanalyzer.NewRegex()
	}
	if e.notifier == nil {
		e.notifier = &notify.LogNotifier{Logger: cfg.Logger}
	}

	e.locks = locks.NewManager(e.store, cfg.LockTTL)
	e.approvals = approval.NewManager(e.store, cfg.ApprovalStages, cfg.FinalApprover)
	e.lifecycle = lifecycle.NewService(e.store, e.analyzer, e.locks, e.approvals, e.notifier, cfg.Logger)
	e.validations = validation.NewRunner(e.store, target)
	e.executor = executor.New(e.store, target, e.validations, cfg.Logger)
	e.scheduler = scheduler.New(e.store, e.executor, scheduler.Config{
		Interval:    cfg.SchedulerInterval,
		Parallelism: cfg.SchedulerParallelism,
		Logger:      cfg.Logger,
		Now:         e.clock,
	})
	return e
}

// Store exposes the metadata store, instrumented when telemetry is on.
func (e *Engine) Store() storage.Store { return e.store }

// Target exposes the rule-execution database handle.
func (e *Engine) Target() *sql.DB { return e.target }

// Locks exposes the pessimistic lock manager.
func (e *Engine) Locks() *locks.Manager { return e.locks }

// Approvals exposes the approval state machine.
func (e *Engine) Approvals() *approval.Manager { return e.approvals }

// Lifecycle exposes rule create/update/deactivate/delete operations.
func (e *Engine) Lifecycle() *lifecycle.Service { return e.lifecycle }

// Validations exposes the data-validation runner.
func (e *Engine) Validations() *validation.Runner { return e.validations }

// Executor exposes the dependency-ordered rule executor.
func (e *Engine) Executor() *executor.Executor { return e.executor }

// Scheduler exposes the wall-clock scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// StartScheduler begins the background schedule loop. Close stops it.
func (e *Engine) StartScheduler(ctx context.Context) {
	e.scheduler.Start(ctx)
}

// Close stops background activity and closes both database handles. Safe
// when the target shares the metadata store's handle.
func (e *Engine) Close() error {
	e.scheduler.Stop()
	errs := []error{e.store.Close()}
	if e.target != nil {
		errs = append(errs, e.target.Close())
	}
	return errors.Join(errs...)
}

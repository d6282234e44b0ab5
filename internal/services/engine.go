package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tally/internal/log"
	"tally/internal/worker"
)

// Purger removes soft-deleted records past their retention.
type Purger interface {
	PurgeDeleted(ctx context.Context) (int, error)
}

// UserSource lists the users whose reminders are checked on each pass.
type UserSource func(ctx context.Context) []string

// SingleUser checks the reminders of one user.
func SingleUser(userID string) UserSource {
	return func(context.Context) []string { return []string{userID} }
}

// EngineConfig holds the engine schedule.
type EngineConfig struct {
	// Interval between check passes (default: 60s).
	Interval time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Interval: 60 * time.Second}
}

// Engine runs a check pass on start and then every interval until stopped.
type Engine struct {
	processor *ReminderProcessor
	users     UserSource
	scheduler worker.Scheduler
	purger    Purger
	now       func() time.Time
	config    EngineConfig
	logger    *log.Logger

	mu   sync.Mutex
	task *worker.Task
}

type EngineOption func(*Engine)

// WithPurger purges soft-deleted records at the end of every pass.
func WithPurger(p Purger) EngineOption {
	return func(e *Engine) { e.purger = p }
}

// WithEngineClock sets the clock of the immediate pass run by Start.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(processor *ReminderProcessor, users UserSource, scheduler worker.Scheduler, config EngineConfig, opts ...EngineOption) *Engine {
	if config.Interval <= 0 {
		config.Interval = DefaultEngineConfig().Interval
	}
	e := &Engine{
		processor: processor,
		users:     users,
		scheduler: scheduler,
		now:       time.Now,
		config:    config,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent(log.ComponentReminder)
	return e
}

// Start runs an immediate pass and schedules the repeating one. It returns
// an error if the engine is already running.
func (e *Engine) Start(ctx context.Context) (*worker.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.liveTask() != nil {
		return nil, fmt.Errorf("reminder engine is already running")
	}

	e.RunPass(ctx, e.now())
	e.task = e.scheduler.Every(ctx, e.config.Interval, e.RunPass)

	e.logger.InfoContext(ctx, "Reminder engine started",
		log.FieldOperation, log.OpStartup, "interval", e.config.Interval.String())
	return e.task, nil
}

// Stop releases the scheduled task and waits for an in-flight pass.
func (e *Engine) Stop() {
	e.mu.Lock()
	task := e.task
	e.task = nil
	e.mu.Unlock()

	if task == nil {
		return
	}
	task.Stop()
	e.logger.Info("Reminder engine stopped", log.FieldOperation, log.OpShutdown)
}

// IsRunning reports whether a task is scheduled and has not ended, either
// through Stop or through cancellation of the context given to Start.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveTask() != nil
}

// liveTask returns the scheduled task, clearing it once its Done channel
// has closed. Callers hold e.mu.
func (e *Engine) liveTask() *worker.Task {
	if e.task == nil {
		return nil
	}
	select {
	case <-e.task.Done():
		e.task = nil
	default:
	}
	return e.task
}

// RunPass checks every user's reminders at now and then purges. Errors are
// logged; a failing user does not stop the others.
func (e *Engine) RunPass(ctx context.Context, now time.Time) {
	start := time.Now()
	total := 0
	for _, userID := range e.users(ctx) {
		if ctx.Err() != nil {
			return
		}
		fired, err := e.processor.CheckPass(ctx, userID, now)
		if err != nil {
			e.logger.LogError(ctx, "Reminder check failed", err, log.OpCheck, log.ErrorTypeInternal,
				log.NewFields().WithUser(userID))
		}
		total += fired
	}

	if e.purger != nil {
		if n, err := e.purger.PurgeDeleted(ctx); err != nil {
			e.logger.LogError(ctx, "Purge failed", err, log.OpPurge, log.ErrorTypeStorage, nil)
		} else if n > 0 {
			e.logger.InfoContext(ctx, "Purged soft-deleted transactions", log.FieldCount, n)
		}
	}

	e.logger.DebugContext(ctx, "Check pass complete",
		"fired", total, log.FieldDuration, time.Since(start).Milliseconds())
}

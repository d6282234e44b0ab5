// Package worker provides the repeating-task scheduler the reminder engine
// runs on.
package worker

import (
	"context"
	"sync"
	"time"

	"tally/internal/log"
)

// TaskFunc is one run of a scheduled task. now is the tick instant.
type TaskFunc func(ctx context.Context, now time.Time)

// Scheduler starts a task that repeats every interval until its handle is
// stopped or ctx is cancelled.
type Scheduler interface {
	Every(ctx context.Context, interval time.Duration, fn TaskFunc) *Task
}

// Task is the handle of a scheduled task. Stop is idempotent and blocks
// until an in-flight run has returned.
type Task struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{cancel: cancel, done: make(chan struct{})}
}

func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has stopped running.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// TickerScheduler runs tasks on a time.Ticker.
type TickerScheduler struct {
	logger *log.Logger
}

func NewTickerScheduler(logger *log.Logger) *TickerScheduler {
	if logger == nil {
		logger = log.Nop()
	}
	return &TickerScheduler{logger: logger.WithComponent(log.ComponentWorker)}
}

func (s *TickerScheduler) Every(ctx context.Context, interval time.Duration, fn TaskFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)
	ticker := time.NewTicker(interval)

	go func() {
		defer close(task.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Scheduled task stopped", "interval", interval.String())
				return
			case now := <-ticker.C:
				fn(ctx, now)
			}
		}
	}()
	return task
}

// ManualScheduler runs tasks only when Fire or Advance is called. It keeps
// a virtual clock so tests can step through time deterministically.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
}

type manualTask struct {
	ctx      context.Context
	task     *Task
	interval time.Duration
	next     time.Time
	fn       TaskFunc
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the virtual clock, usable as an injected time source.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) Every(ctx context.Context, interval time.Duration, fn TaskFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)
	go func() {
		<-ctx.Done()
		close(task.done)
	}()

	s.mu.Lock()
	s.tasks = append(s.tasks, &manualTask{ctx: ctx, task: task, interval: interval, next: s.now.Add(interval), fn: fn})
	s.mu.Unlock()
	return task
}

// Advance moves the virtual clock forward by d, running every task once for
// each interval boundary crossed.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due *manualTask
		for _, t := range s.tasks {
			if t.ctx.Err() != nil || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		at := due.next
		s.now = at
		due.next = at.Add(due.interval)
		s.mu.Unlock()

		due.fn(due.ctx, at)
	}
}

// Fire runs every live task once at the current virtual time without
// moving the clock.
func (s *ManualScheduler) Fire() {
	s.mu.Lock()
	now := s.now
	live := make([]*manualTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.ctx.Err() == nil {
			live = append(live, t)
		}
	}
	s.mu.Unlock()

	for _, t := range live {
		t.fn(t.ctx, now)
	}
}

// Set jumps the virtual clock to t without running any task. Pending
// boundaries are rebased on t.
func (s *ManualScheduler) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
	for _, mt := range s.tasks {
		mt.next = t.Add(mt.interval)
	}
}
